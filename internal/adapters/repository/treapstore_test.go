package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/rivalry/internal/domain/model"
)

func participant(id string, total float64) model.Participant {
	return model.Participant{ID: id, Total: total}
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}

	changed, err := store.Record(ctx, participant("p1", 85.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Error("expected first record to change the total")
	}

	rank, err := store.Rank(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rank != 1 {
		t.Errorf("expected rank 1, got %d", rank)
	}

	p, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Total != 85.5 {
		t.Errorf("expected total 85.5, got %f", p.Total)
	}
}

func TestTreapStore_TotalNeverDecreases(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	_, _ = store.Record(ctx, model.Participant{ID: "p1", Total: 100, Location: model.Location{Region: "A"}})
	changed, err := store.Record(ctx, model.Participant{ID: "p1", Total: 40, Location: model.Location{Region: "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("lower total should not report a change")
	}

	p, _ := store.Get(ctx, "p1")
	if p.Total != 100 {
		t.Errorf("expected total 100, got %f", p.Total)
	}
	if p.Location.Region != "B" {
		t.Errorf("expected location to update to B, got %q", p.Location.Region)
	}

	changed, _ = store.Record(ctx, participant("p1", 150))
	if !changed {
		t.Error("higher total should report a change")
	}
	if rank, _ := store.Rank(ctx, "p1"); rank != 1 {
		t.Errorf("expected rank 1, got %d", rank)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	for _, p := range []model.Participant{
		participant("c", 90), participant("a", 150), participant("b", 120),
		participant("e", 120), participant("d", 10),
	} {
		if _, err := store.Record(ctx, p); err != nil {
			t.Fatalf("record %s: %v", p.ID, err)
		}
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "e", "c", "d"}
	if len(snap) != len(want) {
		t.Fatalf("expected %d participants, got %d", len(want), len(snap))
	}
	for i, id := range want {
		if snap[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, snap[i].ID)
		}
		rank, _ := store.Rank(ctx, id)
		if rank != i+1 {
			t.Errorf("rank of %s: expected %d, got %d", id, i+1, rank)
		}
	}
}

func TestTreapStore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	if _, err := store.Record(ctx, participant("", 1)); !errors.Is(err, ErrInvalidParticipant) {
		t.Errorf("expected ErrInvalidParticipant, got %v", err)
	}
	if _, err := store.Record(ctx, participant("p", -1)); !errors.Is(err, ErrNegativeTotal) {
		t.Errorf("expected ErrNegativeTotal, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Rank(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	snap, err := store.Snapshot(ctx)
	if err != nil || len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %v (%v)", snap, err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(7))

	const writers = 8
	const perWriter = 200
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				id := fmt.Sprintf("p%03d", i)
				_, _ = store.Record(ctx, participant(id, float64(w*perWriter+i)))
				_, _ = store.Snapshot(ctx)
			}
		}()
	}
	wg.Wait()

	n, _ := store.Count(ctx)
	if n != perWriter {
		t.Fatalf("expected %d participants, got %d", perWriter, n)
	}
	snap, _ := store.Snapshot(ctx)
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Total < snap[i].Total {
			t.Fatalf("snapshot out of order at %d: %f < %f", i, snap[i-1].Total, snap[i].Total)
		}
	}
	// Each id ends with the largest total any writer sent.
	for i, p := range snap {
		rank, _ := store.Rank(ctx, p.ID)
		if rank != i+1 {
			t.Errorf("rank of %s: expected %d, got %d", p.ID, i+1, rank)
		}
	}
}

func TestTreapStore_RankMatchesSnapshotUnderChurn(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	for i := range 500 {
		_, _ = store.Record(ctx, participant(fmt.Sprintf("p%d", i%50), float64((i*37)%1000)))
	}
	snap, _ := store.Snapshot(ctx)
	if len(snap) != 50 {
		t.Fatalf("expected 50 participants, got %d", len(snap))
	}
	for i, p := range snap {
		rank, err := store.Rank(ctx, p.ID)
		if err != nil {
			t.Fatalf("rank %s: %v", p.ID, err)
		}
		if rank != i+1 {
			t.Errorf("rank of %s: expected %d, got %d", p.ID, i+1, rank)
		}
	}
}

func TestTreapStore_KeepsActivity(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()
	last := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _ = store.Record(ctx, model.Participant{
		ID: "p", Total: 5,
		Activity: model.ActivityStats{LastActivity: last, Count: 3, Average: 1.5},
	})
	p, _ := store.Get(ctx, "p")
	if !p.Activity.LastActivity.Equal(last) || p.Activity.Count != 3 || p.Activity.Average != 1.5 {
		t.Errorf("unexpected activity %+v", p.Activity)
	}
}

func BenchmarkTreapStore_Record(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Record(ctx, participant(fmt.Sprintf("p%d", i%10000), float64(i)))
	}
}

func BenchmarkTreapStore_Rank(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore()
	for i := range 10000 {
		_, _ = store.Record(ctx, participant(fmt.Sprintf("p%d", i), float64(i)))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Rank(ctx, fmt.Sprintf("p%d", i%10000))
	}
}
