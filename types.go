package goSession

import (
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/principal"
)

// IssuedSession is the result of a successful handshake, issue or magic
// redemption.
type IssuedSession struct {
	Principal principal.Principal
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Created reports whether the handshake provisioned a new principal.
	Created bool
}

// MaxAge returns the cookie Max-Age for the session, in whole seconds.
func (s IssuedSession) MaxAge() int {
	return int(s.ExpiresAt.Sub(s.IssuedAt) / time.Second)
}

// MagicToken is a freshly issued single-use exchange token. Token is shown
// once; only its hash is stored.
type MagicToken struct {
	Token       string
	PrincipalID string
	ExpiresAt   time.Time
}

// TrustedHeaders carries identity asserted by a verified upstream hop.
type TrustedHeaders struct {
	ID     string
	Role   string
	Stamp  string
	Tenant string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink is an [AuditSink] that writes events through a [slog.Logger].
type LogSink = internalaudit.LogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink creates a [LogSink]; a nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	return internalaudit.NewLogSink(logger)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricHandshakeSuccess     = MetricID(internalmetrics.MetricHandshakeSuccess)
	MetricHandshakeFailure     = MetricID(internalmetrics.MetricHandshakeFailure)
	MetricPrincipalProvisioned = MetricID(internalmetrics.MetricPrincipalProvisioned)
	MetricSessionIssued        = MetricID(internalmetrics.MetricSessionIssued)
	MetricVerifySuccess        = MetricID(internalmetrics.MetricVerifySuccess)
	MetricVerifyMalformed      = MetricID(internalmetrics.MetricVerifyMalformed)
	MetricVerifyExpired        = MetricID(internalmetrics.MetricVerifyExpired)
	MetricVerifyRevoked        = MetricID(internalmetrics.MetricVerifyRevoked)
	MetricStampRotated         = MetricID(internalmetrics.MetricStampRotated)
	MetricStampCacheHit        = MetricID(internalmetrics.MetricStampCacheHit)
	MetricStampCacheMiss       = MetricID(internalmetrics.MetricStampCacheMiss)
	MetricRoleChanged          = MetricID(internalmetrics.MetricRoleChanged)
	MetricPrincipalDeleted     = MetricID(internalmetrics.MetricPrincipalDeleted)
	MetricMagicIssued          = MetricID(internalmetrics.MetricMagicIssued)
	MetricMagicRedeemed        = MetricID(internalmetrics.MetricMagicRedeemed)
	MetricMagicRejected        = MetricID(internalmetrics.MetricMagicRejected)
	MetricFastPathAccepted     = MetricID(internalmetrics.MetricFastPathAccepted)
	MetricFastPathRejected     = MetricID(internalmetrics.MetricFastPathRejected)
	MetricRateLimitHit         = MetricID(internalmetrics.MetricRateLimitHit)
	MetricTransientFailure     = MetricID(internalmetrics.MetricTransientFailure)
	MetricVerifyLatency        = MetricID(internalmetrics.MetricVerifyLatency)

	metricIDCount = internalmetrics.MetricIDCount
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
