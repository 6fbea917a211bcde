// Package checkpoint provides durable, thread-scoped persistence of
// conversation state with point-in-time snapshot semantics.
package checkpoint

import (
	"context"

	"github.com/keystone-ai/research-agent/internal/model"
)

// Store persists immutable conversation snapshots per thread.
//
// A thread is created implicitly by its first Append and destroyed by
// DeleteThread. Latest returns (nil, nil) for an unknown thread: absence is
// a normal result, not an error.
type Store interface {
	// Append persists a new immutable snapshot for the thread.
	Append(ctx context.Context, threadID string, state model.State) (*model.Checkpoint, error)

	// Latest returns the most recently appended snapshot for the thread,
	// or nil if the thread has no snapshots.
	Latest(ctx context.Context, threadID string) (*model.Checkpoint, error)

	// ListThreads enumerates all threads with at least one snapshot,
	// ordered by last_updated descending, thread_id ascending on ties.
	ListThreads(ctx context.Context) ([]model.ThreadInfo, error)

	// DeleteThread removes every snapshot for the thread and reports
	// whether anything was deleted. Idempotent.
	DeleteThread(ctx context.Context, threadID string) (bool, error)

	// Close releases the underlying storage.
	Close() error
}
