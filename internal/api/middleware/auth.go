package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"accounts_api/internal/common"
	"accounts_api/internal/common/security"
	"accounts_api/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const UserCtxKey contextKey = "currentUser"

// UserLoader is the slice of the credential store the middleware needs
// for its live account check.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticator gates protected routes: it takes the verified token from
// the request context (jwtauth.Verifier runs earlier in the chain),
// rebuilds the session claims, then reloads the live user record. The
// reload is what lets a deactivated account be rejected before its token
// expires; a stateless token cannot express that on its own.
func Authenticator(users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context()) // Extracts token from Authorization header

			if err != nil {
				if strings.Contains(err.Error(), "token not found") || token == nil {
					common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
				} else {
					common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}
			if token == nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			sc, err := security.SessionClaimsFromMap(claims)
			if err != nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			// Live check: a valid signature is not enough, the account
			// must still exist and be active right now.
			user, err := users.FindByID(r.Context(), sc.UserID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
					return
				}
				common.RespondWithError(w, common.HTTPStatusFromError(err), common.ErrStoreUnavailable.Error())
				return
			}
			if !user.IsActive {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r.Context())
		if !ok || user.Role != model.RoleAdmin {
			common.RespondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SelfOrAdmin allows the request through when the path-addressed user is
// the caller, or the caller is an admin.
func SelfOrAdmin(paramName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}
			targetID := chi.URLParam(r, paramName)
			if user.Role != model.RoleAdmin && user.ID != targetID {
				common.RespondWithError(w, http.StatusForbidden, "You can only access your own resources")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CurrentUser returns the live user record the Authenticator resolved.
func CurrentUser(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(UserCtxKey).(*model.User)
	return user, ok
}
