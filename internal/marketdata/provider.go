package marketdata

import (
	"context"
	"errors"
	"time"
)

// ErrDataUnavailable indicates no snapshot exists at or before the requested
// timestamp. Checkpoints treat the affected cycle as a skip.
var ErrDataUnavailable = errors.New("marketdata: no snapshot at or before requested timestamp")

// Provider supplies historical chain snapshots.
//
// Implementations must never return data recorded after the requested
// timestamp; the no-look-ahead invariant is the core correctness property of
// the whole engine. Providers must be safe for concurrent readers.
type Provider interface {
	// GetSnapshot returns the most recent snapshot at or before ts,
	// or ErrDataUnavailable when none exists.
	GetSnapshot(ctx context.Context, symbol string, ts time.Time) (*Snapshot, error)
}
