package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_RunsTask(t *testing.T) {
	d := New(2, nil, nil)
	defer d.Close()

	var ran atomic.Bool
	id, err := d.Submit("swap:1", Reject, func(ctx context.Context) {
		ran.Store(true)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	d.Wait()
	assert.True(t, ran.Load())
	assert.False(t, d.Running("swap:1"))
}

func TestSubmit_RejectWhileRunning(t *testing.T) {
	d := New(2, nil, nil)
	defer d.Close()

	release := make(chan struct{})
	_, err := d.Submit("swap:1", Reject, func(ctx context.Context) {
		<-release
	})
	require.NoError(t, err)

	_, err = d.Submit("swap:1", Reject, func(ctx context.Context) {
		t.Error("duplicate swap must not run")
	})
	assert.ErrorIs(t, err, ErrBusy)

	_, err = d.Submit("swap:2", Reject, func(ctx context.Context) {})
	assert.NoError(t, err, "other keys are independent")

	close(release)
	d.Wait()

	_, err = d.Submit("swap:1", Reject, func(ctx context.Context) {})
	assert.NoError(t, err, "key is free again once the task finished")
	d.Wait()
}

func TestSubmit_ReplaceCancelsPrevious(t *testing.T) {
	d := New(2, nil, nil)
	defer d.Close()

	started := make(chan struct{})
	var firstCancelled atomic.Bool
	var order []string
	var mu sync.Mutex

	_, err := d.Submit("balance:1", Replace, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		firstCancelled.Store(true)
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	require.NoError(t, err)
	<-started

	_, err = d.Submit("balance:1", Replace, func(ctx context.Context) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})
	require.NoError(t, err)

	d.Wait()
	assert.True(t, firstCancelled.Load())
	assert.Equal(t, []string{"first", "second"}, order, "replacement starts after the old task exits")
}

func TestSubmit_BoundedConcurrency(t *testing.T) {
	const size = 2
	d := New(size, nil, nil)
	defer d.Close()

	var current, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		_, err := d.Submit("swap:"+string(rune('a'+i)), Reject, func(ctx context.Context) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			current.Add(-1)
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return current.Load() == size }, time.Second, 5*time.Millisecond)
	close(release)
	d.Wait()
	assert.Equal(t, int32(size), peak.Load())
}

func TestCancel(t *testing.T) {
	d := New(1, nil, nil)
	defer d.Close()

	started := make(chan struct{})
	_, err := d.Submit("swap:1", Reject, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	require.NoError(t, err)
	<-started

	assert.True(t, d.Cancel("swap:1"))
	d.Wait()
	assert.False(t, d.Cancel("swap:1"))
}

func TestClose_RejectsNewTasks(t *testing.T) {
	d := New(1, nil, nil)

	started := make(chan struct{})
	_, err := d.Submit("swap:1", Reject, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	require.NoError(t, err)
	<-started

	d.Close()

	_, err = d.Submit("swap:2", Reject, func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPanicDoesNotEscape(t *testing.T) {
	d := New(1, nil, nil)
	defer d.Close()

	_, err := d.Submit("swap:1", Reject, func(ctx context.Context) {
		panic("boom")
	})
	require.NoError(t, err)
	d.Wait()
	assert.False(t, d.Running("swap:1"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "swap", kindOf("swap:12"))
	assert.Equal(t, "plain", kindOf("plain"))
}

func TestTaskIDInContext(t *testing.T) {
	d := New(1, nil, nil)
	defer d.Close()

	seen := make(chan string, 1)
	id, err := d.Submit("balance:1", Replace, func(ctx context.Context) {
		seen <- TaskID(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, id, <-seen)
	assert.Empty(t, TaskID(context.Background()))
}
