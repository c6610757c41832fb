package presentation

import (
	"net/http"
	"time"

	"github.com/RaikyD/btc-content-shop/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Orders   *OrdersHandler
	Catalog  *CatalogHandler
	Sessions *SessionsHandler
}

func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Orders.Register(r)
	h.Catalog.Register(r)
	h.Sessions.Register(r)
	return r
}
