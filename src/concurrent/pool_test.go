package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParallelMapPreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	out, err := ParallelMap(context.Background(), items, func(_ context.Context, v int) (int, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 10, nil
	}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range items {
		if out[i] != v*10 {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], v*10)
		}
	}
}

func TestParallelMapBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	items := make([]int, 20)
	_, err := ParallelMap(context.Background(), items, func(_ context.Context, _ int) (int, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return 0, nil
	}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 3 {
		t.Fatalf("concurrency exceeded: %d", peak.Load())
	}
}

func TestParallelMapSettledKeepsPartialResults(t *testing.T) {
	boom := errors.New("boom")
	res := ParallelMapSettled(context.Background(), []string{"a", "bad", "c"}, func(_ context.Context, s string) (string, error) {
		if s == "bad" {
			return "", boom
		}
		return s + s, nil
	}, 0)
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if res[0].Value != "aa" || res[2].Value != "cc" {
		t.Fatalf("unexpected values: %#v", res)
	}
	if !errors.Is(res[1].Err, boom) {
		t.Fatalf("expected boom for item 1, got %v", res[1].Err)
	}
}

func TestParallelMapSettledCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	res := ParallelMapSettled(ctx, []int{1, 2, 3}, func(_ context.Context, v int) (int, error) {
		calls.Add(1)
		return v, nil
	}, 1)
	for i, r := range res {
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("result %d: expected context.Canceled, got %v", i, r.Err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("fn should not run after cancellation")
	}
}

func TestParallelForEachReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := ParallelForEach(context.Background(), []int{1, 2, 3}, func(_ context.Context, v int) error {
		if v == 2 {
			return boom
		}
		return nil
	}, 2)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ParallelForEach(context.Background(), []int(nil), func(context.Context, int) error { return boom }, 1) != nil {
		t.Fatalf("empty input should not error")
	}
}
