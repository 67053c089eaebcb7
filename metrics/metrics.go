// Package metrics exposes service counters in Prometheus text format.
//
// The package wraps VictoriaMetrics/metrics: counters are registered in the
// default set and served by a small standalone HTTP server, kept separate
// from the API listener so that scraping never competes with request traffic.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves the accumulated metrics of this process on /metrics.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the named application listening on addr.
// An empty addr is allowed; the server is then inert until ListenAndServe,
// which callers skip when no metrics address is configured.
func New(appName, addr string) (*MetricsServer, error) {
	vm.GetOrCreateGauge(fmt.Sprintf(`app_up{app=%q}`, appName), func() float64 { return 1 })

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vm.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving metrics until Shutdown or failure.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

var (
	rangeChecksTotal  = vm.NewCounter(`rangecheck_checks_total`)
	decryptionsTotal  = vm.NewCounter(`rangecheck_decryptions_total`)
	resultsPublicized = vm.NewCounter(`rangecheck_results_publicized_total`)
)

// IncRangeCheck counts one completed range check.
func IncRangeCheck() { rangeChecksTotal.Inc() }

// IncRangeCheckFailure counts one failed range check by error kind.
func IncRangeCheckFailure(kind string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`rangecheck_check_failures_total{kind=%q}`, kind)).Inc()
}

// IncDecryption counts one served decryption, mode is "private" or "public".
func IncDecryption(mode string) {
	decryptionsTotal.Inc()
	vm.GetOrCreateCounter(fmt.Sprintf(`rangecheck_decryptions_by_mode_total{mode=%q}`, mode)).Inc()
}

// IncResultPublicized counts one last-result handle made publicly decryptable.
func IncResultPublicized() { resultsPublicized.Inc() }
