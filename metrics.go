package liquidations

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --- Prometheus Metrics Definition ---

// Metrics contains all the Prometheus metrics for the LiquidationSystem.
// Encapsulating them in a struct keeps the main system struct clean and organized.
type Metrics struct {
	// --- Tier 1: Critical System Health & Liveness ---
	LastProcessedBlock *prometheus.GaugeVec
	ErrorsTotal        *prometheus.CounterVec

	// --- Tier 2: Performance & Bottleneck Identification ---
	BlockProcessingDur   *prometheus.HistogramVec
	ProjectionDur        *prometheus.HistogramVec
	VerificationDuration *prometheus.HistogramVec
	PruningDuration      *prometheus.HistogramVec

	// --- Tier 3: Data & State Integrity ---
	AssetsInRegistry     *prometheus.GaugeVec
	PricesResolved       *prometheus.CounterVec
	ObservationsDropped  *prometheus.CounterVec
	DetectionsEmitted    *prometheus.CounterVec
	PositionEventsTotal  *prometheus.CounterVec
	BalanceDrifts        *prometheus.CounterVec
	DegradedResolutions  *prometheus.CounterVec
	ProjectionsSkipped   *prometheus.CounterVec
	HealthFactorsRefresh *prometheus.CounterVec
}

// NewMetrics creates and registers all the Prometheus metrics for the system.
// It takes a prometheus.Registerer to allow for flexible registration (e.g., default vs. custom).
func NewMetrics(reg prometheus.Registerer, systemName string) *Metrics {
	return &Metrics{
		// --- Tier 1 Metrics ---
		LastProcessedBlock: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_last_processed_block",
			Help:      "The block number of the last block successfully processed or skipped by the system.",
		}, []string{}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,

			Name: "liquidation_system_errors_total",
			Help: "Total number of errors encountered by the system, labeled by error type.",
		}, []string{"type"}),

		// --- Tier 2 Metrics ---
		BlockProcessingDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_block_processing_duration_seconds",
			Help:      "A histogram of the time it takes to process a single block (the confirmed 'fast path').",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),

		ProjectionDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_projection_duration_seconds",
			Help:      "A histogram of the time it takes to project account health for one pending transmission.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
		VerificationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_verification_duration_seconds",
			Help:      "A histogram of the time it takes for the balance verifier to run a full cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
		PruningDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,

			Name:    "liquidation_system_pruning_duration_seconds",
			Help:    "A histogram of the time it takes for the pruner to run a full cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{}),

		// --- Tier 3 Metrics ---
		AssetsInRegistry: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_assets_in_registry_total",
			Help:      "The total number of assets currently being tracked in the system's price registry.",
		}, []string{}),

		PricesResolved: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,

			Name: "liquidation_system_prices_resolved_total",
			Help: "A counter of confirmed prices successfully resolved and published, labeled by origin.",
		}, []string{"origin"}),

		ObservationsDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_observations_dropped_total",
			Help:      "A counter of observations dropped before resolution because they were malformed.",
		}, []string{}),

		DetectionsEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_detections_emitted_total",
			Help:      "A counter of liquidation candidate records emitted by the prediction path.",
		}, []string{}),

		PositionEventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_position_events_total",
			Help:      "A counter of pool position events replayed into the position store, labeled by outcome.",
		}, []string{"outcome"}),

		BalanceDrifts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_balance_drifts_total",
			Help:      "A counter of tracked positions corrected after disagreeing with on-chain balances.",
		}, []string{}),

		DegradedResolutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_degraded_resolutions_total",
			Help:      "A counter of prices assembled from stale cached parameters after a live refresh failed.",
		}, []string{}),

		ProjectionsSkipped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_projections_skipped_total",
			Help:      "A counter of users skipped during projection because a price or configuration was missing.",
		}, []string{}),

		HealthFactorsRefresh: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "liquidation_system_health_factor_refreshes_total",
			Help:      "A counter of confirmed health factor recomputations triggered by price updates.",
		}, []string{}),
	}
}
