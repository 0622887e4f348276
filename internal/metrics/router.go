package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latest holds the most recent report for the status endpoint.
type Latest struct {
	p atomic.Pointer[sensors.Report]
}

func (l *Latest) Store(r *sensors.Report) { l.p.Store(r) }
func (l *Latest) Load() *sensors.Report { return l.p.Load() }

// NewRouter exposes health, Prometheus metrics and the latest decoded report.
func NewRouter(g prometheus.Gatherer, latest *Latest) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/api/report/latest", latestHandler(latest)).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func latestHandler(latest *Latest) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rep := latest.Load()
		if rep == nil {
			http.Error(w, "no report decoded yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rep); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
