package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSessionLoaded counts requests whose cookie resolved to a stored record.
	MetricSessionLoaded MetricID = iota
	// MetricSessionAnonymous counts requests that began with an empty session.
	MetricSessionAnonymous
	// MetricTokenMalformed counts cookies that could not be parsed as tokens.
	MetricTokenMalformed
	// MetricTokenBadSignature counts tokens whose signature did not verify.
	MetricTokenBadSignature
	// MetricTokenExpired counts correctly signed tokens past their expiry.
	MetricTokenExpired
	// MetricStoreLoadFailure counts loads that failed on store availability or a corrupt record.
	MetricStoreLoadFailure
	// MetricSessionCreated counts first persists of a session that started empty.
	MetricSessionCreated
	// MetricSessionRotated counts persists of a session that started non-empty.
	MetricSessionRotated
	// MetricSessionCleared counts clearing cookies emitted.
	MetricSessionCleared
	// MetricSessionPersistFailed counts commits that could not save or sign.
	MetricSessionPersistFailed
	// MetricStoreDeleteFailure counts best-effort deletes that failed.
	MetricStoreDeleteFailure
	// MetricCommitSkippedCancelled counts commits skipped because the request was cancelled.
	MetricCommitSkippedCancelled
	// MetricLoginSuccess counts successful credential checks through Engine.Login.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected credential checks through Engine.Login.
	MetricLoginFailure
	// MetricLoginThrottled counts logins refused by the failed-login throttle.
	MetricLoginThrottled
	// MetricStoreLatency is the latency histogram of store calls made by the engine.
	MetricStoreLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A nil or disabled *Metrics is a
// valid no-op recorder.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
//
// MetricsSnapshot instances are intended to be treated as immutable.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a recorder from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
//
// Inc does not allocate and can be used concurrently.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only [MetricStoreLatency] has
// a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricStoreLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the latency histogram when enabled.
//
// Snapshot does not mutate shared state and can be used concurrently.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricStoreLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricStoreLatency].buckets[i])
		}
		s.Histograms[MetricStoreLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
