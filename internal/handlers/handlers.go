package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lending/internal/errs"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a lending error kind to its HTTP status. The order matters
// for errors carrying more than one kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrFeedNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrInvalidConfig), errors.Is(err, errs.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrStalePrice), errors.Is(err, errs.ErrInvalidPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrPoolNotEmpty),
		errors.Is(err, errs.ErrInsufficientBalance),
		errors.Is(err, errs.ErrInsufficientCollateral),
		errors.Is(err, errs.ErrInsufficientLiquidity),
		errors.Is(err, errs.ErrBalanceSlotFull),
		errors.Is(err, errs.ErrOverRepayment):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError writes {"error": code}. Unclassified and invariant
// errors are logged since they never reach the client in detail.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError || errs.IsInvariant(err) {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, status, errs.Code(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func pagination(r *http.Request) (int, int) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}
