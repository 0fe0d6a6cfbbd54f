package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"ledgerlink/internal/domain/item"
)

// WebhookHandler receives provider webhooks. The provider retries on
// non-2xx, so processing failures still return 200: every event the
// lifecycle manager applies is idempotent and a scheduled sync covers
// anything dropped.
type WebhookHandler struct {
	itemService *item.Service
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(itemService *item.Service) *WebhookHandler {
	return &WebhookHandler{itemService: itemService}
}

type webhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	Error       *struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"error"`
	ConsentExpirationTime string `json:"consent_expiration_time"`
}

// HandleProviderWebhook processes a provider webhook event
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}
	if payload.ItemID == "" {
		http.Error(w, "item_id is required", http.StatusBadRequest)
		return
	}

	event := item.WebhookEvent{
		Type:           payload.WebhookType,
		Code:           payload.WebhookCode,
		ProviderItemID: payload.ItemID,
	}
	if payload.Error != nil {
		event.ErrorCode = payload.Error.ErrorCode
		event.ErrorMessage = payload.Error.ErrorMessage
	}
	if payload.ConsentExpirationTime != "" {
		if ts, err := time.Parse(time.RFC3339, payload.ConsentExpirationTime); err == nil {
			event.ConsentExpiresAt = &ts
		} else {
			log.Printf("Webhook for item %s: unparseable consent_expiration_time %q", payload.ItemID, payload.ConsentExpirationTime)
		}
	}

	if err := h.itemService.ApplyWebhook(r.Context(), event); err != nil {
		log.Printf("Webhook %s/%s for item %s failed: %v", event.Type, event.Code, event.ProviderItemID, err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
