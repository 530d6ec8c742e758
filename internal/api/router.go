package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the gateway routes. Mutating routes require a bearer
// token issued by auth; the token subject is the acting account.
func NewRouter(handler *Handler, auth *Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Route("/v1", func(r chi.Router) {
		r.Get("/accounts/{address}/balance", handler.getBalance)
		r.Get("/status", handler.getStatus)
		r.Get("/upkeep", handler.checkUpkeep)
		r.Get("/requests/{request_id}", handler.getRequest)
		r.Group(func(r chi.Router) {
			r.Use(auth.requireAccount)
			r.Post("/buy", handler.buy)
			r.Post("/sell", handler.sell)
			r.Post("/upkeep", handler.performUpkeep)
			r.Post("/vault/emergency-withdraw", handler.emergencyWithdraw)
		})
	})
	return r
}
