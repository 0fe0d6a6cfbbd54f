package http

import (
	"encoding/json"
	"net/http"
	"time"

	"ledgerlink/internal/domain/item"
	"ledgerlink/internal/domain/plan"
	"ledgerlink/internal/shared/middleware"
)

// LinkHandler exposes the provider link flow
type LinkHandler struct {
	itemService *item.Service
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(itemService *item.Service) *LinkHandler {
	return &LinkHandler{itemService: itemService}
}

type CreateLinkTokenRequest struct {
	// ItemID selects update mode for an existing connection. Empty starts
	// a new connection.
	ItemID string `json:"itemId"`
}

type LinkTokenResponse struct {
	LinkToken  string    `json:"linkToken"`
	Expiration time.Time `json:"expiration"`
}

type LinkLimitResponse struct {
	LimitReached   bool      `json:"limitReached"`
	ItemCount      int       `json:"itemCount"`
	MaxConnections *int      `json:"maxConnections"`
	Plan           plan.Plan `json:"plan"`
}

type ExchangeRequest struct {
	PublicToken     string `json:"publicToken"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
}

// HandleCreateLinkToken creates a link token for the client-side widget
func (h *LinkHandler) HandleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateLinkTokenRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	token, err := h.itemService.RequestLink(r.Context(), userID, req.ItemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LinkTokenResponse{
		LinkToken:  token.Token,
		Expiration: token.Expiration,
	})
}

// HandleExchange completes the link flow with the provider's public token
func (h *LinkHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PublicToken == "" {
		http.Error(w, "publicToken is required", http.StatusBadRequest)
		return
	}

	it, err := h.itemService.CompleteLink(r.Context(), userID, req.PublicToken, req.InstitutionID, req.InstitutionName)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemResponse(it))
}

// HandleLinkLimit reports whether the user may open another connection
func (h *LinkHandler) HandleLinkLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	info, canConnect, err := h.itemService.CheckPlanLimit(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LinkLimitResponse{
		LimitReached:   !canConnect,
		ItemCount:      info.ActiveConnections,
		MaxConnections: info.MaxConnections,
		Plan:           info.Plan,
	})
}
