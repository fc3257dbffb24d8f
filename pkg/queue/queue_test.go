package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sqlshell/dbdump/pkg/task"
)

func TestPopPrefersHighestPriority(t *testing.T) {
	q := New(10)
	ctx := context.Background()
	if err := q.Push(ctx, task.NewDumpRange("s", "t", 1, false, nil, false, nil, "")); err != nil {
		t.Fatalf("Push LOW: %v", err)
	}
	if err := q.Push(ctx, task.NewChunkTable("s", "t")); err != nil {
		t.Fatalf("Push MEDIUM: %v", err)
	}
	if err := q.Push(ctx, task.NewDumpSchemaDDL("s")); err != nil {
		t.Fatalf("Push HIGH: %v", err)
	}
	got, ok, err := q.Pop(ctx)
	if err != nil || !ok {
		t.Fatalf("Pop: ok=%v err=%v", ok, err)
	}
	if got.Kind != task.DumpSchemaDDL {
		t.Fatalf("Kind = %v, want DumpSchemaDDL", got.Kind)
	}
	got, _, _ = q.Pop(ctx)
	if got.Kind != task.ChunkTable {
		t.Fatalf("Kind = %v, want ChunkTable", got.Kind)
	}
	got, _, _ = q.Pop(ctx)
	if got.Kind != task.DumpRange {
		t.Fatalf("Kind = %v, want DumpRange", got.Kind)
	}
}

func TestShutdownWakesAllWaiters(t *testing.T) {
	q := New(10)
	const workers = 4
	var wg sync.WaitGroup
	results := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, ok, err := q.Pop(context.Background())
			if err != nil {
				t.Errorf("Pop: %v", err)
			}
			results[idx] = ok
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	q.Shutdown(workers)
	wg.Wait()
	for i, ok := range results {
		if ok {
			t.Fatalf("waiter %d got ok=true, want null task after shutdown", i)
		}
	}
}

func TestPushFailsAfterShutdown(t *testing.T) {
	q := New(10)
	q.Shutdown(0)
	if err := q.Push(context.Background(), task.NewChunkTable("s", "t")); err != ErrClosed {
		t.Fatalf("Push after shutdown = %v, want ErrClosed", err)
	}
}

func TestPushBlocksWhenLaneFull(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	if err := q.Push(ctx, task.NewChunkTable("s", "a")); err != nil {
		t.Fatalf("first Push: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- q.Push(ctx, task.NewChunkTable("s", "b")) }()
	select {
	case <-done:
		t.Fatal("second Push returned before the lane had room")
	case <-time.After(20 * time.Millisecond):
	}
	if _, _, err := q.Pop(ctx); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Push: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second Push never unblocked after room freed")
	}
}
