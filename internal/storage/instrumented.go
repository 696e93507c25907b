package storage

import (
	"context"
	"io"
	"time"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/metrics"
)

type instrumented struct {
	Backend
}

// WithMetrics wraps b so every call is recorded in the storage metrics.
func WithMetrics(b Backend) Backend {
	return &instrumented{Backend: b}
}

func (b *instrumented) record(op string, start time.Time, err error) {
	// A missing path is a normal answer, not a backend failure.
	ok := err == nil || isClientError(err)
	metrics.RecordStorageOperation(b.Type(), op, time.Since(start), ok)
}

func (b *instrumented) Stat(ctx context.Context, p string) (Entry, error) {
	start := time.Now()
	e, err := b.Backend.Stat(ctx, p)
	b.record("stat", start, err)
	return e, err
}

func (b *instrumented) List(ctx context.Context, p string) ([]Entry, error) {
	start := time.Now()
	entries, err := b.Backend.List(ctx, p)
	b.record("list", start, err)
	return entries, err
}

func (b *instrumented) Open(ctx context.Context, p string) (io.ReadCloser, Entry, error) {
	start := time.Now()
	rc, e, err := b.Backend.Open(ctx, p)
	b.record("open", start, err)
	return rc, e, err
}
