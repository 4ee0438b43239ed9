// Package storage declares the persistence contracts used by the pipeline.
package storage

import (
	"context"
	"io"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
)

// MatchStore persists the latest known state of each match, keyed by (id, startTimeEpoch).
type MatchStore interface {
	// Get returns the stored attribute map for key. found is false when no record exists.
	Get(ctx context.Context, key match.Key) (doc match.Document, found bool, err error)
	// Put upserts the whole record. Later writes for the same key win.
	Put(ctx context.Context, m match.Match) error
}

// BlobStore archives raw feed payloads.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
