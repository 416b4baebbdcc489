package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digital-menu/ordering-service/internal/handler"
)

// NewRouter assembles the HTTP surface of the service.
func NewRouter(orders *handler.OrderHandler, products *handler.ProductHandler, health *handler.HealthHandler) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", health.Handle)

	router.Route("/api/v1", func(r chi.Router) {
		orders.RegisterRoutes(r)
		products.RegisterRoutes(r)
	})

	return router
}
