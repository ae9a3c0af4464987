// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQueue serves scripted command batches and records acks.
type fakeQueue struct {
	mu       sync.Mutex
	pending  []schema.CommandEnvelope
	fetches  []int64
	acks     []int64
	fetchErr error
	ackErr   error
}

func (q *fakeQueue) CommandsSince(ctx context.Context, cursor int64) ([]schema.CommandEnvelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fetches = append(q.fetches, cursor)
	if q.fetchErr != nil {
		return nil, q.fetchErr
	}
	var batch []schema.CommandEnvelope
	for _, envelope := range q.pending {
		if envelope.ID > cursor {
			batch = append(batch, envelope)
		}
	}
	return batch, nil
}

func (q *fakeQueue) AckCommands(ctx context.Context, upToID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ackErr != nil {
		return q.ackErr
	}
	q.acks = append(q.acks, upToID)
	// The server drops acknowledged commands.
	var remaining []schema.CommandEnvelope
	for _, envelope := range q.pending {
		if envelope.ID > upToID {
			remaining = append(remaining, envelope)
		}
	}
	q.pending = remaining
	return nil
}

func (q *fakeQueue) lastAck() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.acks) == 0 {
		return 0
	}
	return q.acks[len(q.acks)-1]
}

func (q *fakeQueue) fetchCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fetches)
}

func envelope(id int64, action string) schema.CommandEnvelope {
	return schema.CommandEnvelope{ID: id, Action: action}
}

func newTestCursor(t *testing.T, queue Queue, handler Handler) *Cursor {
	t.Helper()
	cursor, err := New(Config{
		Queue:   queue,
		Handler: handler,
		Clock:   clock.Fake(time.Unix(0, 0)),
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cursor
}

func TestSyncAppliesInOrderAndAcks(t *testing.T) {
	queue := &fakeQueue{pending: []schema.CommandEnvelope{
		envelope(1, "announce"), envelope(2, "setLineup"), envelope(3, "announce"),
	}}

	var applied []int64
	cursor := newTestCursor(t, queue, func(ctx context.Context, e schema.CommandEnvelope) error {
		applied = append(applied, e.ID)
		return nil
	})

	if err := cursor.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(applied) != 3 || applied[0] != 1 || applied[2] != 3 {
		t.Errorf("applied %v, want [1 2 3]", applied)
	}
	if cursor.Acked() != 3 {
		t.Errorf("cursor = %d, want 3", cursor.Acked())
	}
	if queue.lastAck() != 3 {
		t.Errorf("server ack = %d, want 3", queue.lastAck())
	}
}

func TestHandlerFailureStopsBatchAndAcksApplied(t *testing.T) {
	queue := &fakeQueue{pending: []schema.CommandEnvelope{
		envelope(1, "announce"), envelope(2, "explode"), envelope(3, "announce"),
	}}

	var applied []int64
	cursor := newTestCursor(t, queue, func(ctx context.Context, e schema.CommandEnvelope) error {
		if e.Action == "explode" {
			return errors.New("handler failure")
		}
		applied = append(applied, e.ID)
		return nil
	})

	if err := cursor.Sync(context.Background()); err == nil {
		t.Fatal("expected apply failure")
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Errorf("applied %v, want [1]", applied)
	}
	// Only the applied prefix is acknowledged; 2 and 3 redeliver.
	if cursor.Acked() != 1 {
		t.Errorf("cursor = %d, want 1", cursor.Acked())
	}
	if queue.lastAck() != 1 {
		t.Errorf("server ack = %d, want 1", queue.lastAck())
	}

	batch, err := queue.CommandsSince(context.Background(), cursor.Acked())
	if err != nil {
		t.Fatalf("CommandsSince: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != 2 {
		t.Errorf("redelivery batch = %v, want commands 2 and 3", batch)
	}
}

func TestAckFailureRetriedNextCycle(t *testing.T) {
	queue := &fakeQueue{
		pending: []schema.CommandEnvelope{envelope(1, "announce")},
		ackErr:  errors.New("connection refused"),
	}

	var applyCount int
	cursor := newTestCursor(t, queue, func(ctx context.Context, e schema.CommandEnvelope) error {
		applyCount++
		return nil
	})

	// The apply succeeds and the local cursor advances even though
	// the ack never reached the server.
	if err := cursor.Sync(context.Background()); err != nil {
		t.Fatalf("Sync must treat ack failure as non-fatal: %v", err)
	}
	if cursor.Acked() != 1 {
		t.Errorf("cursor = %d, want 1", cursor.Acked())
	}

	// Next cycle fetches past the local cursor, so the command is
	// not re-applied, and the ack lands this time.
	queue.mu.Lock()
	queue.ackErr = nil
	queue.mu.Unlock()

	if err := cursor.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if applyCount != 1 {
		t.Errorf("applied %d times, want 1", applyCount)
	}
}

func TestCursorIsMonotonic(t *testing.T) {
	queue := &fakeQueue{pending: []schema.CommandEnvelope{
		envelope(5, "announce"), envelope(7, "announce"),
	}}
	cursor := newTestCursor(t, queue, func(ctx context.Context, e schema.CommandEnvelope) error {
		return nil
	})

	if err := cursor.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cursor.Acked() != 7 {
		t.Fatalf("cursor = %d, want 7", cursor.Acked())
	}

	// A stale batch (server hiccup replaying old IDs) cannot move the
	// cursor backward or re-apply.
	queue.mu.Lock()
	queue.pending = []schema.CommandEnvelope{envelope(3, "announce")}
	queue.mu.Unlock()

	var replayed bool
	cursor.handler = func(ctx context.Context, e schema.CommandEnvelope) error {
		replayed = true
		return nil
	}
	if err := cursor.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cursor.Acked() != 7 {
		t.Errorf("cursor moved backward to %d", cursor.Acked())
	}
	if replayed {
		t.Error("already-acknowledged command was re-applied")
	}
}

func TestDuplicateIDsInBatchAppliedOnce(t *testing.T) {
	queue := &fakeQueue{pending: []schema.CommandEnvelope{
		envelope(1, "announce"), envelope(1, "announce"), envelope(2, "announce"),
	}}

	var applied []int64
	cursor := newTestCursor(t, queue, func(ctx context.Context, e schema.CommandEnvelope) error {
		applied = append(applied, e.ID)
		return nil
	})

	if err := cursor.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Errorf("applied %v, want [1 2]", applied)
	}
}

func TestEmptyBatchDoesNotAck(t *testing.T) {
	queue := &fakeQueue{}
	cursor := newTestCursor(t, queue, func(ctx context.Context, e schema.CommandEnvelope) error {
		return nil
	})

	if err := cursor.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(queue.acks) != 0 {
		t.Errorf("acks sent for an empty batch: %v", queue.acks)
	}
}

func TestRunSyncsOnKick(t *testing.T) {
	queue := &fakeQueue{}
	cursor := newTestCursor(t, queue, func(ctx context.Context, e schema.CommandEnvelope) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cursor.Run(ctx)
		close(done)
	}()

	// Immediate sync on start.
	waitFor(t, func() bool { return queue.fetchCount() == 1 })

	queue.mu.Lock()
	queue.pending = []schema.CommandEnvelope{envelope(1, "announce")}
	queue.mu.Unlock()

	cursor.Kick()
	waitFor(t, func() bool { return queue.fetchCount() == 2 })
	waitFor(t, func() bool { return cursor.Acked() == 1 })

	cancel()
	<-done
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
