// Package api provides the REST API router.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/internal/api/handlers"
)

// RouterConfig configures the API router.
type RouterConfig struct {
	// Ready reports whether the edge processor can serve traffic; nil means always ready
	Ready func() bool

	// Logger receives one line per request; nil disables request logging
	Logger *zap.SugaredLogger
}

// NewRouter creates a new mux router with all routes configured.
func NewRouter(deps handlers.Dependencies, config RouterConfig) *mux.Router {
	router := mux.NewRouter()

	handler := handlers.NewHandler(deps)

	if config.Logger != nil {
		router.Use(requestLogger(config.Logger))
	}

	// Health check endpoints for Kubernetes probes
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if config.Ready != nil && !config.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not_ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Swagger UI
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// GET /api/v1/sensors - List sensors with data
	api.HandleFunc("/sensors", handler.ListSensors).Methods(http.MethodGet)

	// GET /api/v1/sensors/{id} - Latest reading of a sensor
	api.HandleFunc("/sensors/{id}", handler.GetSensor).Methods(http.MethodGet)

	// GET /api/v1/sensors/{id}/window - Retained readings of a sensor (json or csv)
	api.HandleFunc("/sensors/{id}/window", handler.GetSensorWindow).Methods(http.MethodGet)

	// GET /api/v1/topk - Rank sensors by latest reading
	api.HandleFunc("/topk", handler.TopK).Methods(http.MethodGet)

	// GET /api/v1/aggregate - Mean per sensor
	api.HandleFunc("/aggregate", handler.Aggregate).Methods(http.MethodGet)

	// GET /api/v1/current - Latest value per sensor
	api.HandleFunc("/current", handler.Current).Methods(http.MethodGet)

	// GET /api/v1/queries - Latest results of the configured queries
	api.HandleFunc("/queries", handler.ListQueries).Methods(http.MethodGet)

	// GET /api/v1/stats - Get system statistics
	api.HandleFunc("/stats", handler.GetStats).Methods(http.MethodGet)

	return router
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger *zap.SugaredLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debugw("HTTP request",
				"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
}
