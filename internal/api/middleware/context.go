package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
)

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

// KeyPrefix returns the prefix of the API key that authenticated the request.
func KeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok && prefix != ""
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// WithKey returns a context carrying an authenticated key prefix and scopes.
// Used by tests that exercise handlers behind auth.
func WithKey(ctx context.Context, prefix string, scopes ...string) context.Context {
	return setScopes(setKeyPrefix(ctx, prefix), scopes)
}
