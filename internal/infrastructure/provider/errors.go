package provider

import "fmt"

// Error types assigned by the aggregation API, plus the synthetic type the
// client assigns to transport-level failures.
const (
	TypeItemError    = "ITEM_ERROR"
	TypeInvalidInput = "INVALID_INPUT"
	TypeAPIError     = "API_ERROR"
	TypeRateLimit    = "RATE_LIMIT_EXCEEDED"
	TypeTransport    = "TRANSPORT_ERROR"
)

// Transport error codes.
const (
	CodeTimeout       = "TIMEOUT"
	CodeNetwork       = "NETWORK"
	CodeMalformedBody = "MALFORMED_BODY"
)

// authClassCodes are the provider error codes meaning the user's consent or
// login is no longer valid and the item must be re-linked. This is the only
// error class allowed to demote an item's status.
var authClassCodes = map[string]bool{
	"ITEM_LOGIN_REQUIRED":     true,
	"ACCESS_NOT_GRANTED":      true,
	"USER_PERMISSION_REVOKED": true,
	"INVALID_ACCESS_TOKEN":    true,
	"ITEM_LOCKED":             true,
}

// Error is the single failure shape for every gateway call. API failures
// carry the provider's type/code/message; transport failures (timeout,
// unreadable body) are normalized into the same shape with TypeTransport.
type Error struct {
	Type       string
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s/%s): %s", e.Type, e.Code, e.Message)
}

// AuthClass reports whether the error means consent or login was revoked.
func (e *Error) AuthClass() bool {
	return authClassCodes[e.Code]
}

// Transient reports whether the failure is worth retrying on the next
// scheduled or webhook-triggered sync without user involvement.
func (e *Error) Transient() bool {
	if e.Type == TypeTransport || e.Type == TypeRateLimit {
		return true
	}
	return e.StatusCode >= 500
}

// AuthClassCode reports whether a webhook-delivered error code belongs to
// the consent/login-revoked class.
func AuthClassCode(code string) bool {
	return authClassCodes[code]
}
