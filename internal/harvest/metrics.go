package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// unitsHarvestedTotal tracks units fully extracted and handed to the store.
	unitsHarvestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_units_total",
		Help: "The total number of content units harvested and recorded.",
	})
	// fieldFailuresTotal tracks per-field extraction failures.
	fieldFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_field_failures_total",
		Help: "The total number of field extraction failures, labeled by field.",
	}, []string{"field"})
	// emptyScansTotal tracks candidate scans that found nothing unvisited.
	emptyScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_empty_scans_total",
		Help: "The total number of candidate scans with no unvisited unit.",
	})
	// driftRecoveriesTotal tracks successful returns from the recovering state.
	driftRecoveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_drift_recoveries_total",
		Help: "The total number of successful navigation drift recoveries.",
	})
	// unitsAbandonedTotal tracks units given up after bounded open retries.
	unitsAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_units_abandoned_total",
		Help: "The total number of units abandoned before extraction.",
	})
	// apiFallbackTotal tracks signed API calls issued for media resolution.
	apiFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_api_fallback_total",
		Help: "The total number of signed API fallback calls.",
	})
)
