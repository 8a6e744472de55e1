package http

import (
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CycleStatus describes the retraining schedule for /status.
type CycleStatus struct {
	State   string    `json:"state"`
	LastRun time.Time `json:"last_run,omitzero"`
	NextRun time.Time `json:"next_run"`
}

// StatusFunc reports the current retraining schedule.
type StatusFunc func() CycleStatus

// OpsServer exposes health, readiness, status and metrics endpoints for the
// retraining daemon.
type OpsServer struct {
	server
}

// NewOpsServer creates an HTTP server with /healthz, /readyz, /status and
// /metrics routes. A nil status omits /status.
func NewOpsServer(addr string, ready sharedobs.ReadinessChecker, status StatusFunc, logger *slog.Logger) *OpsServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	if status != nil {
		mux.HandleFunc("GET /status", handleStatus(status))
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", notFound)

	return &OpsServer{server: newServer("ops", addr, recoverer(logger, mux), logger)}
}

func handleStatus(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sharedobs.WriteJSON(w, http.StatusOK, status())
	}
}
