package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionLoaded, Name: "gosession_session_loaded_total", Help: "Requests whose cookie resolved to a stored session."},
	{ID: goSession.MetricSessionAnonymous, Name: "gosession_session_anonymous_total", Help: "Requests that began with an empty session."},
	{ID: goSession.MetricTokenMalformed, Name: "gosession_token_malformed_total", Help: "Session cookies that could not be parsed as tokens."},
	{ID: goSession.MetricTokenBadSignature, Name: "gosession_token_bad_signature_total", Help: "Session tokens with an invalid signature."},
	{ID: goSession.MetricTokenExpired, Name: "gosession_token_expired_total", Help: "Correctly signed session tokens past their expiry."},
	{ID: goSession.MetricStoreLoadFailure, Name: "gosession_store_load_failure_total", Help: "Session loads that failed on the store."},
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Sessions persisted for the first time."},
	{ID: goSession.MetricSessionRotated, Name: "gosession_session_rotated_total", Help: "Sessions persisted under a fresh key."},
	{ID: goSession.MetricSessionCleared, Name: "gosession_session_cleared_total", Help: "Sessions cleared and their cookie expired."},
	{ID: goSession.MetricSessionPersistFailed, Name: "gosession_session_persist_failed_total", Help: "Commits that could not save or sign the session."},
	{ID: goSession.MetricStoreDeleteFailure, Name: "gosession_store_delete_failure_total", Help: "Best-effort session deletes that failed."},
	{ID: goSession.MetricCommitSkippedCancelled, Name: "gosession_commit_skipped_cancelled_total", Help: "Commits skipped because the request was cancelled."},
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Rejected logins."},
	{ID: goSession.MetricLoginThrottled, Name: "gosession_login_throttled_total", Help: "Logins refused by the failed-login throttle."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricStoreLatency, Name: "gosession_store_latency_seconds", Help: "Session store call latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed 8-bucket array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
