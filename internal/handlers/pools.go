package handlers

import (
	"net/http"

	"lending/internal/middleware"
	"lending/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.lending.Pools(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pools)
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.lending.Pool(r.Context(), chi.URLParam(r, "asset"))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pool)
}

// CreatePool registers a pool with the caller as its authority.
func (h *Handler) CreatePool(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createPoolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	params, err := req.params(userID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	pool, err := h.lending.CreatePool(r.Context(), params)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.auditAction(r, userID, "create_pool", pool.AssetID, map[string]string{
		"address":        pool.Address,
		"ticker":         pool.Config.Ticker,
		"oracle_feed_id": pool.Config.FeedID.String(),
	})
	respondJSON(w, http.StatusCreated, pool)
}

// ClosePool removes an empty pool. Only the admin that created it may close
// it.
func (h *Handler) ClosePool(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	assetID := chi.URLParam(r, "asset")
	if err := h.lending.ClosePool(r.Context(), userID, assetID); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.auditAction(r, userID, "close_pool", assetID, nil)
	w.WriteHeader(http.StatusNoContent)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type poolMutation func(h *Handler, r *http.Request, owner, assetID string, amount uint64) (services.Result, error)

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutatePool(w, r, func(h *Handler, r *http.Request, owner, assetID string, amount uint64) (services.Result, error) {
		return h.lending.Deposit(r.Context(), owner, assetID, amount)
	})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutatePool(w, r, func(h *Handler, r *http.Request, owner, assetID string, amount uint64) (services.Result, error) {
		return h.lending.Withdraw(r.Context(), owner, assetID, amount)
	})
}

func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	h.mutatePool(w, r, func(h *Handler, r *http.Request, owner, assetID string, amount uint64) (services.Result, error) {
		return h.lending.Repay(r.Context(), owner, assetID, amount)
	})
}

func (h *Handler) mutatePool(w http.ResponseWriter, r *http.Request, apply poolMutation) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	result, err := apply(h, r, userID, chi.URLParam(r, "asset"), amount)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// auditAction records an admin action. Failures are logged, not returned,
// because the ledger change has already committed.
func (h *Handler) auditAction(r *http.Request, actorID, action, assetID string, data any) {
	if h.txRunner == nil || h.audit == nil {
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.audit.Log(r.Context(), tx, actorID, action, "pool", assetID, data)
	})
	if err != nil {
		h.logger.Warn("audit write failed", "action", action, "asset_id", assetID, "error", err)
	}
}
