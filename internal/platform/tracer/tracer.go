// Package tracer is a small tracing abstraction so services can emit spans
// without importing OpenTelemetry directly.
//
// Implementations:
//   - Noop: tests and deployments without a collector
//   - OTel: OpenTelemetry adapter over the global provider
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int(key string, value int) Attribute { return Attribute{Key: key, Value: int64(value)} }

// Duration records the value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanSubmit      = "credential.submit"
	SpanReview      = "credential.review"
	SpanStatus      = "credential.status"
	SpanExpiryScan  = "credential.expiry_scan"
	SpanSuspend     = "owner.suspend"
	SpanLift        = "owner.lift"
	SpanInspectFile = "filestore.inspect"
)

// Attribute keys.
const (
	AttrOwnerID      = "owner.id"
	AttrOwnerKind    = "owner.kind"
	AttrCredentialID = "credential.id"
	AttrKind         = "credential.kind"
	AttrDecision     = "review.decision"
	AttrCacheHit     = "cache.hit"
	AttrExpired      = "scan.expired"
	AttrExpiring     = "scan.expiring"
	AttrFailures     = "scan.failures"
)
