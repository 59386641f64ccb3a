package filestore

import (
	"context"
	"time"

	"credlife/pkg/platform/circuit"

	dErrors "credlife/pkg/domain-errors"
)

type objectStore interface {
	Inspect(ctx context.Context, uri string) (*Object, error)
	DownloadURL(ctx context.Context, uri string) (string, time.Time, error)
}

// Guarded puts a circuit breaker in front of an object store. While the
// store keeps failing, calls return a persistence error without reaching it.
// Policy rejections such as a missing object count as a healthy store.
type Guarded struct {
	inner   objectStore
	breaker *circuit.Breaker
}

func NewGuarded(inner objectStore, breaker *circuit.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) Inspect(ctx context.Context, uri string) (*Object, error) {
	if err := g.allow(); err != nil {
		return nil, err
	}
	obj, err := g.inner.Inspect(ctx, uri)
	g.breaker.Record(!isOutage(err))
	return obj, err
}

func (g *Guarded) DownloadURL(ctx context.Context, uri string) (string, time.Time, error) {
	if err := g.allow(); err != nil {
		return "", time.Time{}, err
	}
	url, expires, err := g.inner.DownloadURL(ctx, uri)
	g.breaker.Record(!isOutage(err))
	return url, expires, err
}

func (g *Guarded) allow() error {
	if err := g.breaker.Allow(); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "file store unavailable")
	}
	return nil
}

func isOutage(err error) bool {
	return err != nil && dErrors.HasCode(err, dErrors.CodePersistence)
}
