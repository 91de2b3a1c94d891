package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/kpiforecast/internal/domain/model"
)

func job(id string) Job {
	return Job{ID: id, User: model.UserSnapshot{UserID: "user-" + id}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job("j1")) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "j1" || got.User.UserID != "user-j1" {
		t.Errorf("unexpected job %+v", got)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !q.Enqueue(ctx, job(fmt.Sprint(i))) {
			t.Fatalf("enqueue %d should fit", i)
		}
	}
	if q.Enqueue(ctx, job("overflow")) {
		t.Error("expected enqueue to fail when full")
	}
}

func TestInMemoryQueue_SubmitWaitsForRoom(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()

	if err := q.Submit(ctx, job("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Submit(timeout, job("b")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Submit(ctx, job("c")) }()

	jobs := q.Dequeue(ctx)
	if j := <-jobs; j.ID != "a" {
		t.Errorf("expected a, got %s", j.ID)
	}
	if err := <-done; err != nil {
		t.Errorf("submit after room freed: %v", err)
	}
	if j := <-jobs; j.ID != "c" {
		t.Errorf("expected c, got %s", j.ID)
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, job("a"))
	q.Enqueue(ctx, job("b"))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, job("late")) {
		t.Error("enqueue after close should fail")
	}
	if err := q.Submit(ctx, job("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var ids []string
	for j := range q.Dequeue(ctx) {
		ids = append(ids, j.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("expected queued jobs to drain in order, got %v", ids)
	}
}

func TestInMemoryQueue_DequeueStopsOnCancel(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	jobs := q.Dequeue(ctx)
	cancel()

	select {
	case _, ok := <-jobs:
		if ok {
			t.Error("expected no job after cancel")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel did not close after cancel")
	}
}
