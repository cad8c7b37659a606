package bookmark

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/bookmarkman/internal/config"
	"github.com/hitoshi/bookmarkman/internal/model"
)

func TestNewReorderer_SelectsStrategy(t *testing.T) {
	repo := &mockBookmarkRepo{}

	if r := NewReorderer(config.ReorderModeAtomic, repo, 4); r.Mode() != config.ReorderModeAtomic {
		t.Errorf("Mode() = %q, want atomic", r.Mode())
	}
	if r := NewReorderer(config.ReorderModeFanout, repo, 4); r.Mode() != config.ReorderModeFanout {
		t.Errorf("Mode() = %q, want fanout", r.Mode())
	}
}

func TestAtomicReorderer_UsesSingleBatch(t *testing.T) {
	var calls int
	repo := &mockBookmarkRepo{
		updatePositionsFn: func(_ context.Context, userID string, updates []model.PositionUpdate) (int64, error) {
			calls++
			if userID != "user-1" || len(updates) != 3 {
				t.Errorf("unexpected call: %s %v", userID, updates)
			}
			return 3, nil
		},
		updatePositionFn: func(_ context.Context, _, _ string, _ int) (int64, error) {
			t.Fatal("per-row update should not be used")
			return 0, nil
		},
	}

	n, err := (&AtomicReorderer{writer: repo}).Apply(context.Background(), "user-1", []model.PositionUpdate{
		{ID: "a", Position: 2}, {ID: "b", Position: 0}, {ID: "c", Position: 1},
	})
	if err != nil || n != 3 || calls != 1 {
		t.Errorf("Apply() = %d, %v (calls=%d)", n, err, calls)
	}
}

func TestFanoutReorderer_UpdatesEveryRow(t *testing.T) {
	var mu sync.Mutex
	got := map[string]int{}
	repo := &mockBookmarkRepo{updatePositionFn: func(_ context.Context, userID, id string, position int) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		got[id] = position
		if id == "foreign" {
			return 0, nil
		}
		return 1, nil
	}}

	n, err := NewFanoutReorderer(repo, 2).Apply(context.Background(), "user-1", []model.PositionUpdate{
		{ID: "a", Position: 0}, {ID: "b", Position: 1}, {ID: "foreign", Position: 2},
	})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if n != 2 {
		t.Errorf("matched = %d, want 2", n)
	}
	if len(got) != 3 || got["a"] != 0 || got["b"] != 1 {
		t.Errorf("updates = %v", got)
	}
}

func TestFanoutReorderer_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	repo := &mockBookmarkRepo{updatePositionFn: func(_ context.Context, _, _ string, _ int) (int64, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 1, nil
	}}

	updates := make([]model.PositionUpdate, 20)
	for i := range updates {
		updates[i] = model.PositionUpdate{ID: string(rune('a' + i)), Position: i}
	}

	if _, err := NewFanoutReorderer(repo, 3).Apply(context.Background(), "user-1", updates); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

// 一部の行が失敗してもすべての行の更新を待ち、失敗をまとめて返す
func TestFanoutReorderer_PartialFailure(t *testing.T) {
	var attempted int32
	repo := &mockBookmarkRepo{updatePositionFn: func(_ context.Context, _, id string, _ int) (int64, error) {
		atomic.AddInt32(&attempted, 1)
		if id == "b" {
			return 0, errors.New("row lock timeout")
		}
		return 1, nil
	}}

	n, err := NewFanoutReorderer(repo, 0).Apply(context.Background(), "user-1", []model.PositionUpdate{
		{ID: "a", Position: 0}, {ID: "b", Position: 1}, {ID: "c", Position: 2},
	})
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if !strings.Contains(err.Error(), "row lock timeout") || !strings.Contains(err.Error(), "1 of 3") {
		t.Errorf("error = %v", err)
	}
	if attempted != 3 {
		t.Errorf("attempted = %d, want 3", attempted)
	}
	if n != 2 {
		t.Errorf("matched = %d, want 2", n)
	}
}
