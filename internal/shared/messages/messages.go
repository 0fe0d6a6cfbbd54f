// Package messages loads the user-facing push notification copy. Texts live
// in a JSON file so copy changes don't require a rebuild; when no file is
// configured the built-in defaults apply.
package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Messages holds one entry per notification kind. Bodies may contain a
// single %s verb, filled with the institution name.
type Messages struct {
	ConnectionConfirmed MessageText `json:"connection_confirmed"`
	RelinkRequired      MessageText `json:"relink_required"`
}

// Default returns the built-in notification texts.
func Default() *Messages {
	return &Messages{
		ConnectionConfirmed: MessageText{
			Title: "Connection established",
			Body:  "%s is now linked to your account.",
		},
		RelinkRequired: MessageText{
			Title: "Connection needs attention",
			Body:  "Reconnect %s to keep your data up to date.",
		},
	}
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the notifications JSON file and caches the result.
// Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		if err := json.Unmarshal(data, &loaded); err != nil {
			loadErr = fmt.Errorf("failed to parse messages file: %w", err)
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}
