// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the values; services and workers only read them:
//
//	actor := requestcontext.Actor(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "credlife/pkg/domain"
)

type (
	actorKey       struct{}
	clientIPKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// AuthenticatedActor is the caller identity established by the auth middleware.
type AuthenticatedActor struct {
	ID   id.ActorID
	Role id.Role
}

// IsZero reports whether no actor was set.
func (a AuthenticatedActor) IsZero() bool {
	return a.ID.IsNil() && a.Role == ""
}

// Actor retrieves the authenticated actor, or the zero value when unauthenticated.
func Actor(ctx context.Context) AuthenticatedActor {
	if a, ok := ctx.Value(actorKey{}).(AuthenticatedActor); ok {
		return a
	}
	return AuthenticatedActor{}
}

func WithActor(ctx context.Context, actor AuthenticatedActor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ClientIP retrieves the caller IP recorded by middleware.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// RequestID retrieves the request correlation ID.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time. Falls back to time.Now() outside a
// request (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins "now" for everything downstream of ctx.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
