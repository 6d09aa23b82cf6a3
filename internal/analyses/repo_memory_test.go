package analyses

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepoLifecycle(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	created := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, Analysis{ID: "a1", Status: StatusQueued, CreatedAt: created}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	started := created.Add(time.Second)
	if err := repo.UpdateStatus(ctx, "a1", StatusProcessing, started); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	result := Result{Score: 91.2, Feedback: Feedback{Basic: []string{"A", "B"}, ChatGPT: "C"}}
	if err := repo.Complete(ctx, "a1", result, started.Add(time.Minute)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := repo.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusCompleted || got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Result == nil || got.Result.Score != 91.2 {
		t.Fatalf("unexpected result %+v", got.Result)
	}

	// Mutating a returned copy must not leak into the store.
	got.Result.Feedback.Basic[0] = "changed"
	again, _ := repo.GetByID(ctx, "a1")
	if again.Result.Feedback.Basic[0] != "A" {
		t.Fatalf("repo returned shared slice")
	}
}

func TestMemoryRepoFailAndNotFound(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Fail(ctx, "missing", StatusFailed, "x", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	repo.Create(ctx, Analysis{ID: "a1", Status: StatusProcessing})
	if err := repo.Fail(ctx, "a1", StatusCanceled, "analysis canceled", time.Now()); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := repo.GetByID(ctx, "a1")
	if got.Status != StatusCanceled || got.ErrorMessage == nil || *got.ErrorMessage != "analysis canceled" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestMemoryRepoListRecent(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		repo.Create(ctx, Analysis{ID: id, Status: StatusQueued, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	items, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(items) != 2 || items[0].ID != "c" || items[1].ID != "b" {
		t.Fatalf("unexpected order %+v", items)
	}
}
