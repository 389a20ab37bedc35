package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/verimem/internal/model"
)

// slowVerifier blocks inside Verify so pool scheduling can be observed.
// The stubVerifier fixture in batch_test.go covers the non-blocking cases.
type slowVerifier struct {
	delay   time.Duration
	onStart func()
	onEnd   func()
}

func (v *slowVerifier) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	if v.onStart != nil {
		v.onStart()
	}
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if v.onEnd != nil {
		v.onEnd()
	}
	return &model.VerifyResponse{}, nil
}

func TestNewPool_WorkerCount(t *testing.T) {
	cases := []struct {
		requested int
		want      int
	}{
		{requested: 5, want: 5},
		{requested: 1, want: 1},
		{requested: 0, want: 1},
		{requested: -3, want: 1},
	}
	for _, tc := range cases {
		if p := NewPool(tc.requested); p.workers != tc.want {
			t.Errorf("NewPool(%d): got %d workers, want %d", tc.requested, p.workers, tc.want)
		}
	}
}

func TestPool_ExecutesEveryJob(t *testing.T) {
	pool := NewPool(2)
	pool.Start()

	v := &stubVerifier{}
	count := 10
	for i := 0; i < count; i++ {
		pool.Submit(&verifyJob{index: i, claim: "the moon is made of cheese", verifier: v})
	}

	results := pool.Wait()
	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if calls := atomic.LoadInt32(&v.calls); calls != int32(count) {
		t.Errorf("expected %d verify calls, got %d", count, calls)
	}
}

func TestPool_ConcurrencyBound(t *testing.T) {
	workers := 4
	pool := NewPool(workers)
	pool.Start()

	var current, maxSeen, completed int32
	var mu sync.Mutex

	v := &slowVerifier{
		delay: 10 * time.Millisecond,
		onStart: func() {
			curr := atomic.AddInt32(&current, 1)
			mu.Lock()
			if curr > maxSeen {
				maxSeen = curr
			}
			mu.Unlock()
		},
		onEnd: func() {
			atomic.AddInt32(&current, -1)
			atomic.AddInt32(&completed, 1)
		},
	}

	totalJobs := 30
	for i := 0; i < totalJobs; i++ {
		pool.Submit(&verifyJob{index: i, claim: "sharks are older than trees", verifier: v})
	}
	pool.Wait()

	if atomic.LoadInt32(&completed) != int32(totalJobs) {
		t.Errorf("expected %d completed jobs, got %d", totalJobs, completed)
	}
	mu.Lock()
	peak := maxSeen
	mu.Unlock()
	if peak > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", peak, workers)
	}
}

func TestPool_ErrorsSurfaceInResults(t *testing.T) {
	pool := NewPool(2)
	pool.Start()

	v := &stubVerifier{failText: "bad claim"}
	pool.Submit(&verifyJob{index: 0, claim: "bad claim", verifier: v})
	pool.Submit(&verifyJob{index: 1, claim: "good claim", verifier: v})

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	failed := 0
	for _, res := range results {
		if res.GetError() != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed result, got %d", failed)
	}
}

func TestPool_SubmitAfterShutdownDoesNotBlock(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		pool.Submit(&verifyJob{claim: "water is wet", verifier: &stubVerifier{}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

func TestPool_ShutdownCancelsInFlightJobs(t *testing.T) {
	pool := NewPool(2)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(&verifyJob{
		claim: "lightning never strikes twice",
		verifier: &slowVerifier{
			delay:   200 * time.Millisecond,
			onStart: func() { close(started) },
		},
	})
	<-started

	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		for range pool.results {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Shutdown timed out")
	}
}
