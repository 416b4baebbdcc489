package handler

import (
	"context"
	"net/http"
	"time"
)

type HealthReport struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies"`
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type catalogChecker interface {
	Healthy(ctx context.Context) bool
}

// HealthHandler reports the service health together with its dependencies.
// The database is a hard dependency, the catalog service a soft one: the
// service keeps accepting orders in degraded mode when the catalog is down.
type HealthHandler struct {
	serviceName string
	db          dbPinger
	catalog     catalogChecker
}

func NewHealthHandler(serviceName string, db dbPinger, catalog catalogChecker) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		db:          db,
		catalog:     catalog,
	}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	report := HealthReport{
		Status:       "healthy",
		Service:      h.serviceName,
		Dependencies: map[string]string{},
	}

	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		report.Dependencies["database"] = "unavailable"
		report.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		report.Dependencies["database"] = "ok"
	}

	if h.catalog.Healthy(ctx) {
		report.Dependencies["catalog"] = "ok"
	} else {
		report.Dependencies["catalog"] = "unavailable"
		if report.Status == "healthy" {
			report.Status = "degraded"
		}
	}

	respondWithJSON(w, code, report)
}
