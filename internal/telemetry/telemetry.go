// Package telemetry wraps prometheus/client_golang the way
// chidi150c-coinbase's metrics.go does: package-level metric vars registered
// once, served on an optional HTTP handler. Backs spec.md §5's
// connection-failure counter (also externally observable here) and a
// per-venue live-order gauge.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// ConnectionFailuresTotal mirrors risk.ConnectionBreaker's in-process
	// counter, for dashboards.
	ConnectionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discretionary_engine_connection_failures_total",
		Help: "Count of reported connection failures toward the fatal-alert budget.",
	})

	// LiveOrders is the count of currently-live orders per venue, updated by
	// each Exchange Adapter after every reconciliation pass.
	LiveOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "discretionary_engine_live_orders",
		Help: "Currently-live exchange orders, per venue.",
	}, []string{"venue"})

	// PositionsActive is the count of Position tasks currently running.
	PositionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "discretionary_engine_positions_active",
		Help: "Number of Position lifecycle tasks currently running.",
	})
)

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// cancelled. Optional: the counters above run in-process regardless of
// whether this is ever called (spec.md SPEC_FULL §4.9).
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info().Str("addr", addr).Msg("telemetry: /metrics endpoint listening")

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("while serving /metrics: %w", err)
		}
		return nil
	}
}
