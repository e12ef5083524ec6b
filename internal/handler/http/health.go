package http

import (
	"Clixy-Backend/internal/analytics"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Version is reported by the health and metrics endpoints. Overridden at build time with -ldflags.
var Version = "dev"

// Pinger checks datastore connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProcessorStats exposes analytics processor counters.
type ProcessorStats interface {
	GetStats() analytics.Stats
}

// HealthHandler обработчик health checks
type HealthHandler struct {
	db        Pinger
	processor ProcessorStats
	startTime time.Time
	log       *zap.Logger
}

// NewHealthHandler создает новый health handler
func NewHealthHandler(db Pinger, processor ProcessorStats, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		processor: processor,
		startTime: time.Now(),
		log:       log,
	}
}

// HealthResponse структура ответа health check
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Version        string    `json:"version"`
	DatabaseStatus string    `json:"database_status"`
	Uptime         string    `json:"uptime,omitempty"`
}

// MetricsResponse is the body of GET /metrics.
type MetricsResponse struct {
	UptimeSeconds float64         `json:"uptime_seconds"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       string          `json:"version"`
	Analytics     analytics.Stats `json:"analytics"`
}

// Health godoc
// @Summary      Liveness and datastore check
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Failure      503  {object}  HealthResponse
// @Router       /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
		h.log.Error("database health check failed", zap.Error(err))
	}

	status := "healthy"
	statusCode := http.StatusOK
	if dbStatus == "unhealthy" {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status:         status,
		Timestamp:      time.Now(),
		Version:        Version,
		DatabaseStatus: dbStatus,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
	}, h.log)
}

// Ready readiness probe endpoint (упрощенная версия)
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now(),
	}, h.log)
}

// Metrics godoc
// @Summary      Process and analytics queue counters
// @Tags         health
// @Produce      json
// @Success      200  {object}  MetricsResponse
// @Router       /metrics [get]
func (h *HealthHandler) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MetricsResponse{
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Timestamp:     time.Now(),
		Version:       Version,
		Analytics:     h.processor.GetStats(),
	}, h.log)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}
