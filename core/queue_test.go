package core

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1, -100} {
		_, err := NewQueue(c)
		require.ErrorIs(t, err, ErrInvalidParameter, "capacity %d", c)
	}
}

func TestQueue_FIFO(t *testing.T) {
	q, err := NewQueue(16)
	require.NoError(t, err)

	var want []string
	for i := 0; i < 16; i++ {
		s := fmt.Sprintf("line-%d", i)
		want = append(want, s)
		require.NoError(t, q.Put(s))
	}

	for i := 0; i < 16; i++ {
		got, err := q.Get()
		require.NoError(t, err)
		require.Equal(t, want[i], got)
	}
}

func TestQueue_PutBlocksWhenFull(t *testing.T) {
	q, err := NewQueue(2)
	require.NoError(t, err)
	require.NoError(t, q.Put("a"))
	require.NoError(t, q.Put("b"))

	done := make(chan error, 1)
	go func() {
		done <- q.Put("c")
	}()

	select {
	case <-done:
		t.Fatal("Put succeeded on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "a", got)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put not released by Get")
	}

	require.Equal(t, 2, q.Len())
}

func TestQueue_GetBlocksWhenEmpty(t *testing.T) {
	q, err := NewQueue(4)
	require.NoError(t, err)

	type result struct {
		s   string
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := q.Get()
		done <- result{s, err}
	}()

	select {
	case <-done:
		t.Fatal("Get returned on an empty open queue")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Put("x"))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, "x", r.s)
	case <-time.After(time.Second):
		t.Fatal("Get not released by Put")
	}
}

func TestQueue_PutAfterFinished(t *testing.T) {
	q, err := NewQueue(4)
	require.NoError(t, err)
	q.SignalFinished()
	require.ErrorIs(t, q.Put("x"), ErrClosed)
}

func TestQueue_BlockedPutReleasedByFinish(t *testing.T) {
	q, err := NewQueue(1)
	require.NoError(t, err)
	require.NoError(t, q.Put("a"))

	done := make(chan error, 1)
	go func() {
		done <- q.Put("b")
	}()
	time.Sleep(20 * time.Millisecond)

	q.SignalFinished()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Put not released by SignalFinished")
	}

	// the accepted item is still delivered
	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "a", got)

	_, err = q.Get()
	require.ErrorIs(t, err, ErrEndOfStream)
}

func TestQueue_BlockedGetReleasedByFinish(t *testing.T) {
	q, err := NewQueue(4)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := q.Get()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	q.SignalFinished()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrEndOfStream)
	case <-time.After(time.Second):
		t.Fatal("blocked Get not released by SignalFinished")
	}
}

func TestQueue_NoLossBeforeClose(t *testing.T) {
	q, err := NewQueue(8)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Put(fmt.Sprintf("%d", i)))
	}
	q.SignalFinished()

	for i := 0; i < 5; i++ {
		got, err := q.Get()
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("%d", i), got)
	}

	for i := 0; i < 3; i++ {
		_, err := q.Get()
		require.ErrorIs(t, err, ErrEndOfStream)
	}
}

func TestQueue_FinishIdempotent(t *testing.T) {
	q, err := NewQueue(4)
	require.NoError(t, err)
	require.NoError(t, q.Put("a"))

	q.SignalFinished()
	q.SignalFinished()
	q.SignalFinished()

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "a", got)

	_, err = q.Get()
	require.ErrorIs(t, err, ErrEndOfStream)
}

func TestQueue_WaitFinished(t *testing.T) {
	q, err := NewQueue(4)
	require.NoError(t, err)
	require.NoError(t, q.Put("pending")) // items do not block WaitFinished

	done := make(chan error, 1)
	go func() {
		done <- q.WaitFinished()
	}()

	select {
	case <-done:
		t.Fatal("WaitFinished returned before SignalFinished")
	case <-time.After(50 * time.Millisecond):
	}

	q.SignalFinished()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitFinished not released")
	}

	// returns immediately once finished
	require.NoError(t, q.WaitFinished())
}

func TestQueue_Destroy(t *testing.T) {
	q, err := NewQueue(4)
	require.NoError(t, err)
	require.NoError(t, q.Put("a"))
	require.NoError(t, q.Put("b"))
	q.SignalFinished()
	q.Destroy()
	require.Equal(t, 0, q.Len())
}

// TestQueue_NoLostWakeup hammers the empty-queue blocking path: a
// consumer that blocked on an empty open queue must return within a
// bounded time of a subsequent Put or SignalFinished.
func TestQueue_NoLostWakeup(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	rnd := rand.New(rand.NewSource(42))
	for run := 0; run < 500; run++ {
		q, err := NewQueue(1)
		require.NoError(t, err)

		got := make(chan error, 1)
		go func() {
			_, err := q.Get()
			got <- err
		}()

		// randomize whether the consumer is already parked
		if d := rnd.Intn(100); d > 0 {
			time.Sleep(time.Duration(d) * time.Microsecond)
		}

		if run%2 == 0 {
			require.NoError(t, q.Put("x"))
		} else {
			q.SignalFinished()
		}

		select {
		case err := <-got:
			if run%2 == 0 {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrEndOfStream)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("run %d: lost wakeup", run)
		}
	}
}

// TestQueue_Bounded runs a producer against a slow consumer and checks
// the queue never exceeds its capacity.
func TestQueue_Bounded(t *testing.T) {
	const capacity = 4
	q, err := NewQueue(capacity)
	require.NoError(t, err)

	go func() {
		for i := 0; i < 100; i++ {
			q.Put(fmt.Sprintf("%d", i))
		}
		q.SignalFinished()
	}()

	n := 0
	for {
		require.LessOrEqual(t, q.Len(), capacity)
		_, err := q.Get()
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 100, n)
}
