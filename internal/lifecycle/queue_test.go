package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestEnqueueNextComplete(t *testing.T) {
	q := NewQueue()
	pos := q.Enqueue(Item{ID: "a"})
	if pos != 1 {
		t.Fatalf("expected position 1, got %d", pos)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	item, ok := q.Next(ctx)
	if !ok || item.ID != "a" {
		t.Fatalf("expected item a, got %+v ok=%v", item, ok)
	}

	status := q.Status()
	if !status.Working {
		t.Fatal("expected working=true after Next")
	}

	remaining := q.Complete()
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
	if q.Status().Working {
		t.Fatal("expected working=false after Complete")
	}
}

func TestNextBlocksThenWakesOnEnqueue(t *testing.T) {
	q := NewQueue()
	done := make(chan Item, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		item, ok := q.Next(ctx)
		if ok {
			done <- item
		}
	}()

	time.Sleep(50 * time.Millisecond)
	q.Enqueue(Item{ID: "late"})

	select {
	case item := <-done:
		if item.ID != "late" {
			t.Fatalf("expected item 'late', got %q", item.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next never woke after Enqueue")
	}
}

func TestNextTimesOutWithNoItem(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, ok := q.Next(ctx)
	if ok {
		t.Fatal("expected Next to time out with no queued item")
	}
}

func TestAtMostOneWorkingItem(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Item{ID: "first"})
	q.Enqueue(Item{ID: "second"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := q.Next(ctx)
	if !ok || first.ID != "first" {
		t.Fatalf("expected first item, got %+v", first)
	}

	shortCtx, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	if _, ok := q.Next(shortCtx); ok {
		t.Fatal("expected second Next to block while an item is working")
	}

	q.Complete()

	ctx2, cancel3 := context.WithTimeout(context.Background(), time.Second)
	defer cancel3()
	second, ok := q.Next(ctx2)
	if !ok || second.ID != "second" {
		t.Fatalf("expected second item after Complete, got %+v", second)
	}
}
