package observability

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimsTotal counts claim attempts by outcome
	// (accepted, conflict, invalid_state, not_found, error).
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodshare_claims_total",
		Help: "Total number of claim attempts by outcome",
	}, []string{"outcome"})

	// SearchesTotal counts listing searches by mode (proximity, browse).
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodshare_searches_total",
		Help: "Total number of listing searches by mode",
	}, []string{"mode"})

	// SweepExpiredTotal counts listings transitioned to expired by the sweeper.
	SweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foodshare_sweep_expired_total",
		Help: "Total number of listings expired by the background sweep",
	})

	// SweepRunsTotal counts sweep runs by result (ok, error).
	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodshare_sweep_runs_total",
		Help: "Total number of sweep runs by result",
	}, []string{"result"})

	// ListingsCreatedTotal counts successfully created listings by category.
	ListingsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodshare_listings_created_total",
		Help: "Total number of listings created by category",
	}, []string{"category"})
)

// InitHTTPMetrics creates the Fiber Prometheus middleware for HTTP-level
// request metrics. The returned value must be registered on the app and
// exposes its handler on the metrics route.
func InitHTTPMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}
