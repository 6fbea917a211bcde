package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-ai/research-agent/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func stateWith(contents ...string) model.State {
	var state model.State
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		state = append(state, model.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Role:      role,
			Content:   c,
			CreatedAt: time.Now(),
		})
	}
	return state
}

func TestAppendAndLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp1, err := store.Append(ctx, "thread-a", stateWith("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp1.Seq)

	cp2, err := store.Append(ctx, "thread-a", stateWith("hello", "hi there"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp2.Seq)

	latest, err := store.Latest(ctx, "thread-a")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.Seq)
	require.Len(t, latest.State, 2)
	assert.Equal(t, "hi there", latest.State[1].Content)
	assert.Equal(t, model.RoleAssistant, latest.State[1].Role)
}

func TestLatestUnknownThread(t *testing.T) {
	store := newTestStore(t)

	latest, err := store.Latest(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestAppendEmptyThreadID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append(context.Background(), "", stateWith("x"))
	assert.Error(t, err)
}

func TestSequencesAreIndependentPerThread(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, "thread-a", stateWith("a"))
		require.NoError(t, err)
	}
	cp, err := store.Append(ctx, "thread-b", stateWith("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Seq)
}

func TestListThreadsOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "older", stateWith("first"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.Append(ctx, "newer", stateWith("second"))
	require.NoError(t, err)

	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "newer", threads[0].ThreadID)
	assert.Equal(t, "older", threads[1].ThreadID)

	// Touching the older thread moves it to the front.
	time.Sleep(5 * time.Millisecond)
	_, err = store.Append(ctx, "older", stateWith("first", "reply"))
	require.NoError(t, err)

	threads, err = store.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "older", threads[0].ThreadID)
	assert.Equal(t, 2, threads[0].CheckpointCount)
	assert.Equal(t, 1, threads[1].CheckpointCount)
	assert.True(t, threads[0].LastUpdated.After(threads[1].LastUpdated))
}

func TestListThreadsEmpty(t *testing.T) {
	store := newTestStore(t)

	threads, err := store.ListThreads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestDeleteThread(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "doomed", stateWith("bye"))
	require.NoError(t, err)
	_, err = store.Append(ctx, "survivor", stateWith("hello"))
	require.NoError(t, err)

	deleted, err := store.DeleteThread(ctx, "doomed")
	require.NoError(t, err)
	assert.True(t, deleted)

	latest, err := store.Latest(ctx, "doomed")
	require.NoError(t, err)
	assert.Nil(t, latest)

	// Deleting again is safe and reports nothing removed.
	deleted, err = store.DeleteThread(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, deleted)

	// The other thread is untouched.
	latest, err = store.Latest(ctx, "survivor")
	require.NoError(t, err)
	require.NotNil(t, latest)

	// A new turn after deletion starts the sequence over.
	cp, err := store.Append(ctx, "doomed", stateWith("fresh start"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Seq)
}

func TestConcurrentAppendsSameThread(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Append(ctx, "busy", stateWith(fmt.Sprintf("write %d", i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	latest, err := store.Latest(ctx, "busy")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(writers), latest.Seq)

	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, writers, threads[0].CheckpointCount)
}

func TestTimestampLayoutSortsLexicographically(t *testing.T) {
	// A whole-second timestamp rendered with RFC3339Nano drops the fraction
	// and would string-compare greater than a later instant in the same
	// second. The fixed-width layout must not have that problem.
	whole := time.Date(2026, 8, 29, 12, 0, 5, 0, time.UTC)
	later := whole.Add(500 * time.Millisecond)

	assert.True(t, whole.Format(time.RFC3339Nano) > later.Format(time.RFC3339Nano))
	assert.True(t, whole.Format(timestampLayout) < later.Format(timestampLayout))

	// Stored values still parse with the lenient reader used on load.
	parsed, err := time.Parse(time.RFC3339Nano, whole.Format(timestampLayout))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(whole))
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
