package rpc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactorRunsTasksInPostOrder(t *testing.T) {
	r := newReactor(0, 16)
	defer r.stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		r.post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestReactorTaskSeesItsOwnLoopGoroutine(t *testing.T) {
	r := newReactor(0, 16)
	defer r.stop()

	result := make(chan bool, 1)
	r.post(func() {
		result <- r.loopGID.Load() == goroutineID()
	})
	require.True(t, <-result)
}

func TestReactorDrainsPendingTasksOnStop(t *testing.T) {
	r := newReactor(0, 16)

	var ran atomic.Int32
	done := make(chan struct{})
	r.post(func() {
		// Block the loop briefly so the next post lands in the queue
		// rather than running immediately.
		time.Sleep(20 * time.Millisecond)
		ran.Add(1)
	})
	r.post(func() {
		ran.Add(1)
		close(done)
	})

	r.stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued task did not run before stop returned")
	}
	assert.Equal(t, int32(2), ran.Load())
}

func TestReactorPostAfterStopDoesNotBlock(t *testing.T) {
	r := newReactor(0, 1)
	r.stop()

	done := make(chan struct{})
	go func() {
		r.post(func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("post after stop blocked forever")
	}
}

func TestReactorPoolDistributesRoundRobin(t *testing.T) {
	pool := NewReactorPool(&ReactorPoolConfig{NumReactors: 3, TaskQueueSize: 8})
	defer pool.Stop()

	seen := map[*Reactor]int{}
	for i := 0; i < 9; i++ {
		seen[pool.Next()]++
	}
	require.Len(t, seen, 3)
	for _, count := range seen {
		assert.Equal(t, 3, count)
	}
}
