package middleware

import (
	"context"
	"net/http"
)

// RoleManagePools lets an admin create and close pools.
const RoleManagePools = "CanManagePools"

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RequireAdmin admits super admins and admins holding role. An empty role
// admits any admin.
func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized)
				return
			}
			allowed, status, code := authorize(r.Context(), adminStore, userID, role)
			if !allowed {
				writeError(w, status, code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorize(ctx context.Context, adminStore AdminStore, userID, role string) (bool, int, string) {
	isAdmin, isSuper, err := adminStore.IsAdmin(ctx, userID)
	if err != nil {
		return false, http.StatusInternalServerError, CodeInternal
	}
	if !isAdmin {
		return false, http.StatusForbidden, CodeForbidden
	}
	if isSuper || role == "" {
		return true, 0, ""
	}
	hasRole, err := adminStore.HasRole(ctx, userID, role)
	if err != nil {
		return false, http.StatusInternalServerError, CodeInternal
	}
	if !hasRole {
		return false, http.StatusForbidden, CodeForbidden
	}
	return true, 0, ""
}
