package http

import (
	"net/http"
	"time"

	"ledgerlink/internal/domain/item"
	"ledgerlink/internal/shared/middleware"
)

// ItemHandler exposes the user's connections
type ItemHandler struct {
	itemService *item.Service
}

// NewItemHandler creates a new item handler
func NewItemHandler(itemService *item.Service) *ItemHandler {
	return &ItemHandler{itemService: itemService}
}

// ItemResponse is the transport shape of one connection
type ItemResponse struct {
	ID                   string     `json:"id"`
	InstitutionID        string     `json:"institutionId"`
	InstitutionName      string     `json:"institutionName"`
	InstitutionLogo      []byte     `json:"institutionLogo,omitempty"`
	Status               string     `json:"status"`
	ErrorCode            string     `json:"errorCode,omitempty"`
	ErrorMessage         string     `json:"errorMessage,omitempty"`
	ConsentExpiresAt     *time.Time `json:"consentExpiresAt,omitempty"`
	NewAccountsAvailable bool       `json:"newAccountsAvailable"`
	CreatedAt            time.Time  `json:"createdAt"`
}

func toItemResponse(it *item.Item) ItemResponse {
	return ItemResponse{
		ID:                   it.ID,
		InstitutionID:        it.InstitutionID,
		InstitutionName:      it.InstitutionName,
		InstitutionLogo:      it.InstitutionLogo,
		Status:               string(it.Status),
		ErrorCode:            it.ErrorCode,
		ErrorMessage:         it.ErrorMessage,
		ConsentExpiresAt:     it.ConsentExpiresAt,
		NewAccountsAvailable: it.NewAccountsAvailable(),
		CreatedAt:            it.CreatedAt,
	}
}

// HandleListItems returns the user's connections with plan context
func (h *ItemHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	overview, err := h.itemService.ListItems(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ItemResponse, 0, len(overview.Items))
	for _, it := range overview.Items {
		items = append(items, toItemResponse(it))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    items,
		"plan":     overview.Plan,
		"deletion": overview.Deletion,
	})
}

// HandleItemByID handles operations on a specific connection
func (h *ItemHandler) HandleItemByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	itemID := r.PathValue("id")
	if itemID == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := h.itemService.RemoveItem(r.Context(), userID, itemID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleDismissNewAccounts clears the new-accounts notice for a connection
func (h *ItemHandler) HandleDismissNewAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	itemID := r.PathValue("id")
	if itemID == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	if err := h.itemService.DismissNewAccounts(r.Context(), userID, itemID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
