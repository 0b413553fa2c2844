package handlers

import (
	"errors"
	"net/http"

	"lending/internal/errs"
	"lending/internal/middleware"
	"lending/internal/models"
	"lending/internal/services"
	"lending/internal/websocket"
)

// InitUser opens the caller's ledger position.
func (h *Handler) InitUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.lending.InitUser(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.lending.User(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r)
	ops, err := h.lending.Operations(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if ops == nil {
		ops = []models.Operation{}
	}
	respondJSON(w, http.StatusOK, ops)
}

type borrowRequest struct {
	CollateralAssetID string `json:"collateral_asset_id"`
	BorrowAssetID     string `json:"borrow_asset_id"`
	Amount            string `json:"amount"`
}

func (h *Handler) decodeBorrow(w http.ResponseWriter, r *http.Request) (services.BorrowRequest, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return services.BorrowRequest{}, false
	}
	var req borrowRequest
	if err := decodeJSON(w, r, &req); err != nil || req.CollateralAssetID == "" || req.BorrowAssetID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return services.BorrowRequest{}, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondDomainError(w, r, err)
		return services.BorrowRequest{}, false
	}
	return services.BorrowRequest{
		Owner:             userID,
		CollateralAssetID: req.CollateralAssetID,
		BorrowAssetID:     req.BorrowAssetID,
		Amount:            amount,
	}, true
}

func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBorrow(w, r)
	if !ok {
		return
	}
	result, err := h.lending.Borrow(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// AssessBorrow answers whether a borrow would be allowed now. A denial is
// a normal 200 response with allowed=false.
func (h *Handler) AssessBorrow(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBorrow(w, r)
	if !ok {
		return
	}
	decision, err := h.lending.AssessBorrow(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	reason := ""
	if err := decision.Err(); err != nil {
		reason = err.Error()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"decision": decision,
		"reason":   reason,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	report, err := h.lending.Health(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) WSPositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var snapshot any
	user, err := h.lending.User(r.Context(), userID)
	switch {
	case err == nil:
		snapshot = user
	case !errors.Is(err, errs.ErrNotFound):
		h.respondDomainError(w, r, err)
		return
	}
	websocket.ServeWS(w, r, h.hub, userID, snapshot)
}
