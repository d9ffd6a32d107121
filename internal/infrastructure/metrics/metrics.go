// Package metrics exposes Prometheus collectors for the offline client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cropcare"

var (
	drainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_drains_total",
		Help:      "Drain passes over the pending-operation queue, by result (completed, skipped).",
	}, []string{"result"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_operations_total",
		Help:      "Queued operations processed during drains, by entity type and outcome (applied, retried, dropped).",
	}, []string{"entity_type", "outcome"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_queue_depth",
		Help:      "Pending operations waiting for the next drain.",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Local cache reads, by result (hit, miss, expired, corrupt).",
	}, []string{"result"})

	cacheSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_swept_entries_total",
		Help:      "Expired cache entries removed by sweeps.",
	})

	storageQuotaHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_storage_quota_exceeded_total",
		Help:      "Cache writes rejected because local storage was full.",
	})

	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyses_total",
		Help:      "Crop analyses by final status and mode (online, queued).",
	}, []string{"status", "mode"})

	chatStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_streams_total",
		Help:      "Assistant reply streams by outcome (completed, cancelled, failed).",
	}, []string{"outcome"})

	translationLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "translation_lookups_total",
		Help:      "Translation requests by result (hit, miss, fallback, skipped).",
	}, []string{"result"})

	networkTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "network_transitions_total",
		Help:      "Connectivity changes observed by the network monitor.",
	}, []string{"state"})
)

// Label values.
const (
	DrainCompleted = "completed"
	DrainSkipped   = "skipped"

	OpApplied = "applied"
	OpRetried = "retried"
	OpDropped = "dropped"

	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheCorrupt = "corrupt"

	ModeOnline = "online"
	ModeQueued = "queued"

	StreamCompleted = "completed"
	StreamCancelled = "cancelled"
	StreamFailed    = "failed"

	TranslationHit      = "hit"
	TranslationMiss     = "miss"
	TranslationFallback = "fallback"
	TranslationSkipped  = "skipped"
)

// RecordDrain counts a drain pass.
func RecordDrain(result string) { drainsTotal.WithLabelValues(result).Inc() }

// RecordOperation counts a processed queued operation.
func RecordOperation(entityType, outcome string) {
	operationsTotal.WithLabelValues(entityType, outcome).Inc()
}

// SetQueueDepth reports the current queue length.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// RecordCacheLookup counts a cache read.
func RecordCacheLookup(result string) { cacheLookups.WithLabelValues(result).Inc() }

// RecordCacheSweep counts removed expired entries.
func RecordCacheSweep(removed int64) { cacheSwept.Add(float64(removed)) }

// RecordStorageQuota counts a rejected cache write.
func RecordStorageQuota() { storageQuotaHits.Inc() }

// RecordAnalysis counts an analysis reaching a final status.
func RecordAnalysis(status, mode string) { analysesTotal.WithLabelValues(status, mode).Inc() }

// RecordChatStream counts a finished assistant stream.
func RecordChatStream(outcome string) { chatStreams.WithLabelValues(outcome).Inc() }

// RecordTranslation counts a translation request.
func RecordTranslation(result string) { translationLookups.WithLabelValues(result).Inc() }

// RecordNetworkTransition counts a connectivity change.
func RecordNetworkTransition(online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	networkTransitions.WithLabelValues(state).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
