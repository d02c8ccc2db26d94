package middleware

import (
	"context"
	"net/http"
	"strings"

	"aivisibility/internal/auth"
	"aivisibility/internal/utils"
)

// Context keys for admin authentication data.
const (
	AdminClaimsKey   ContextKey = "adminClaims"
	AdminUsernameKey ContextKey = "adminUsername"
	AdminRoleKey     ContextKey = "adminRole"
)

// AdminJWTMiddleware validates admin bearer tokens on the operations
// endpoints and enforces the required role.
func AdminJWTMiddleware(secret []byte, required auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateAdminToken(tokenString, secret)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			if !auth.Role(claims.Role).HasPermission(required) {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), AdminClaimsKey, claims)
			ctx = context.WithValue(ctx, AdminUsernameKey, claims.Username)
			ctx = context.WithValue(ctx, AdminRoleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminClaims retrieves the admin claims from the request context.
func GetAdminClaims(ctx context.Context) (*auth.AdminClaims, bool) {
	claims, ok := ctx.Value(AdminClaimsKey).(*auth.AdminClaims)
	return claims, ok
}

// GetAdminUsername retrieves the admin username from the request context.
func GetAdminUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(AdminUsernameKey).(string)
	return username, ok
}
