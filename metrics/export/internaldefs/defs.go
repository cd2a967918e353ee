package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricHandshakeSuccess, Name: "gosession_handshake_success_total", Help: "Successful embedded-client handshakes."},
	{ID: goSession.MetricHandshakeFailure, Name: "gosession_handshake_failure_total", Help: "Rejected embedded-client handshakes."},
	{ID: goSession.MetricPrincipalProvisioned, Name: "gosession_principal_provisioned_total", Help: "Principals created on first handshake."},
	{ID: goSession.MetricSessionIssued, Name: "gosession_session_issued_total", Help: "Signed session tokens issued."},
	{ID: goSession.MetricVerifySuccess, Name: "gosession_verify_success_total", Help: "Session tokens that verified."},
	{ID: goSession.MetricVerifyMalformed, Name: "gosession_verify_malformed_total", Help: "Session tokens rejected as malformed."},
	{ID: goSession.MetricVerifyExpired, Name: "gosession_verify_expired_total", Help: "Session tokens rejected outside their validity window."},
	{ID: goSession.MetricVerifyRevoked, Name: "gosession_verify_revoked_total", Help: "Session tokens rejected by the stamp check."},
	{ID: goSession.MetricStampRotated, Name: "gosession_stamp_rotated_total", Help: "Security stamp rotations."},
	{ID: goSession.MetricStampCacheHit, Name: "gosession_stamp_cache_hit_total", Help: "Stamp lookups served from the local cache."},
	{ID: goSession.MetricStampCacheMiss, Name: "gosession_stamp_cache_miss_total", Help: "Stamp lookups that reached the principal store."},
	{ID: goSession.MetricRoleChanged, Name: "gosession_role_changed_total", Help: "Role changes."},
	{ID: goSession.MetricPrincipalDeleted, Name: "gosession_principal_deleted_total", Help: "Principal soft deletes."},
	{ID: goSession.MetricMagicIssued, Name: "gosession_magic_issued_total", Help: "Magic tokens issued."},
	{ID: goSession.MetricMagicRedeemed, Name: "gosession_magic_redeemed_total", Help: "Magic tokens redeemed."},
	{ID: goSession.MetricMagicRejected, Name: "gosession_magic_rejected_total", Help: "Magic token redemptions rejected."},
	{ID: goSession.MetricFastPathAccepted, Name: "gosession_fast_path_accepted_total", Help: "Trusted header identities accepted."},
	{ID: goSession.MetricFastPathRejected, Name: "gosession_fast_path_rejected_total", Help: "Trusted header identities rejected."},
	{ID: goSession.MetricRateLimitHit, Name: "gosession_rate_limit_hit_total", Help: "Attempts denied by a per-client budget."},
	{ID: goSession.MetricTransientFailure, Name: "gosession_transient_failure_total", Help: "Operations failed by an unavailable backend."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricVerifyLatency, Name: "gosession_verify_latency_seconds", Help: "Session verification latency."},
}

// HistogramBounds are the bucket upper bounds as Prometheus label values.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSeconds are the finite bucket upper bounds in seconds.
var HistogramBoundSeconds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix are the bucket bounds as instrument name suffixes.
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

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
