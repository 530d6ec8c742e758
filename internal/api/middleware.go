package api

import (
	"context"
	"net/http"
	"strings"

	"TaxPool/internal/model"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const accountKey contextKey = "account"

// requireAccount authenticates the bearer token and stores its subject as
// the acting account. Any other account header is ignored.
func (a *Authenticator) requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="taxpool"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", reqID)
			return
		}
		account, err := a.Parse(strings.TrimSpace(raw))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="taxpool", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token", reqID)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, account)))
	})
}

func accountFromContext(ctx context.Context) model.Address {
	if v, ok := ctx.Value(accountKey).(model.Address); ok {
		return v
	}
	return ""
}
