package httpx

import (
	"context"
	"net/http"
	"strings"
)

// Identity headers are set by the upstream gateway after authentication.
const (
	HeaderUserEmail = "X-User-Email"
	HeaderUserRoles = "X-User-Roles"

	RoleAdmin = "ADMIN"
)

type ctxKey struct{}

type Identity struct {
	Email string
	Roles []string
}

func (id Identity) Has(role string) bool {
	for _, r := range id.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// RequireUser rejects requests without a caller email.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.Header.Get(HeaderUserEmail))
		if email == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing caller identity"})
			return
		}
		var roles []string
		for _, role := range strings.Split(r.Header.Get(HeaderUserRoles), ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, Identity{Email: email, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.Has(RoleAdmin) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) string {
	id, _ := IdentityFrom(r.Context())
	return id.Email
}
