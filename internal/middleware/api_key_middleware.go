package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"aivisibility/internal/auth"
	"aivisibility/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts.
type ContextKey string

const (
	// APIKeyRecordKey is the context key for the authenticated API key
	// record.
	APIKeyRecordKey ContextKey = "apiKeyRecord"
)

// APIKeyMiddleware validates API keys on scan routes and adds the key
// record to the request context. Keys arrive in X-API-Key or as a Bearer
// token.
func APIKeyMiddleware(store auth.APIKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					apiKey = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}
			if apiKey == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
				return
			}

			record, err := store.Lookup(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, auth.ErrKeyNotFound) {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
					return
				}
				utils.RespondWithError(w, http.StatusInternalServerError, "Error validating API key: "+err.Error())
				return
			}
			if record.Revoked {
				utils.RespondWithError(w, http.StatusUnauthorized, "API key has been revoked")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyRecordKey, record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKeyRecord retrieves the API key record from the request context.
func GetAPIKeyRecord(ctx context.Context) (*auth.APIKeyRecord, bool) {
	record, ok := ctx.Value(APIKeyRecordKey).(*auth.APIKeyRecord)
	return record, ok
}
