package handlers

import (
	"errors"
	"net/http"

	"lending/internal/auth"
	"lending/internal/errs"
	"lending/internal/middleware"
	"lending/internal/store"
	"lending/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a login identity. The first identity ever registered
// becomes the super admin.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	for _, check := range []error{
		validator.ValidateUsername(req.Username),
		validator.ValidateEmail(req.Email),
		validator.ValidatePassword(req.Password),
	} {
		if check != nil {
			respondError(w, http.StatusBadRequest, check.Error())
			return
		}
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	identity := store.Identity{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}
	superAdmin := false
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.identities.Create(r.Context(), tx, identity); err != nil {
			return err
		}
		hasAdmin, err := h.admin.HasAnyAdmin(r.Context(), tx)
		if err != nil {
			return err
		}
		if !hasAdmin {
			if err := h.admin.CreateAdmin(r.Context(), tx, identity.ID, true, nil); err != nil {
				return err
			}
			superAdmin = true
		}
		return h.audit.Log(r.Context(), tx, identity.ID, "register", "user", identity.ID, map[string]any{
			"ip":          r.RemoteAddr,
			"user_agent":  r.UserAgent(),
			"super_admin": superAdmin,
		})
	})
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			respondError(w, http.StatusConflict, "username or email already exists")
			return
		}
		h.logger.Error("registration failed", "username", req.Username, "error", err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, identity.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	h.logger.Info("identity registered", "user_id", identity.ID, "super_admin", superAdmin)
	respondJSON(w, http.StatusCreated, map[string]any{
		"token":       token,
		"user_id":     identity.ID,
		"super_admin": superAdmin,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	identity, err := h.identities.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !auth.CheckPassword(identity.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.audit.Log(r.Context(), tx, identity.ID, "login", "user", identity.ID, map[string]string{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
		})
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, identity.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	identity, err := h.identities.GetByID(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	roles := []string{}
	if isAdmin && !isSuper {
		if roles, err = h.admin.Roles(r.Context(), userID); err != nil {
			respondError(w, http.StatusInternalServerError, "unable to load roles")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":          identity.ID,
		"username":    identity.Username,
		"email":       identity.Email,
		"created_at":  identity.CreatedAt,
		"is_admin":    isAdmin,
		"super_admin": isSuper,
		"roles":       roles,
	})
}
