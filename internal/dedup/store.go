// Package dedup records which completion callbacks have been delivered so a
// redelivered callback is acknowledged without being delivered twice.
//
// A record moves through two states. Claim inserts it as processing with a
// short lease; Complete marks it processed for the retention window. A claim
// whose lease expired (the process died mid-delivery) can be taken over.
package dedup

import (
	"context"
	"errors"
	"time"
)

// State of a dedup record.
type State string

const (
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("dedup store closed")

// Store is the deduplication state shared by callback handlers.
type Store interface {
	// Claim atomically records key as processing for lease if no live record
	// exists. It reports whether the caller won the claim.
	Claim(ctx context.Context, key string, lease time.Duration) (bool, error)
	// Complete marks key processed for retention.
	Complete(ctx context.Context, key string, retention time.Duration) error
	// Prune removes expired records and returns how many were removed.
	Prune(ctx context.Context) (int64, error)
	Close() error
}
