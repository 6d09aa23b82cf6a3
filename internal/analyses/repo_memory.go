package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Analysis
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Analysis)}
}

// Create stores the analysis.
func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[analysis.ID] = cloneAnalysis(analysis)
	return nil
}

// GetByID returns an analysis by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return cloneAnalysis(analysis), nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, analysisID, status string, at time.Time) error {
	return r.update(ctx, analysisID, func(a *Analysis) {
		a.Status = status
		if status == StatusProcessing && a.StartedAt == nil {
			started := at
			a.StartedAt = &started
		}
		a.UpdatedAt = at
	})
}

func (r *MemoryRepo) Complete(ctx context.Context, analysisID string, result Result, completedAt time.Time) error {
	return r.update(ctx, analysisID, func(a *Analysis) {
		res := cloneResult(result)
		a.Status = StatusCompleted
		a.Result = &res
		a.ErrorMessage = nil
		a.CompletedAt = &completedAt
		a.UpdatedAt = completedAt
	})
}

func (r *MemoryRepo) Fail(ctx context.Context, analysisID, status, message string, completedAt time.Time) error {
	return r.update(ctx, analysisID, func(a *Analysis) {
		msg := message
		a.Status = status
		a.ErrorMessage = &msg
		a.CompletedAt = &completedAt
		a.UpdatedAt = completedAt
	})
}

// ListRecent returns analyses newest first.
func (r *MemoryRepo) ListRecent(ctx context.Context, limit int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Analysis, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, cloneAnalysis(a))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) update(ctx context.Context, analysisID string, fn func(*Analysis)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	fn(&analysis)
	r.byID[analysisID] = analysis
	return nil
}

func cloneAnalysis(a Analysis) Analysis {
	if a.Result != nil {
		res := cloneResult(*a.Result)
		a.Result = &res
	}
	return a
}

func cloneResult(r Result) Result {
	if r.Feedback.Basic != nil {
		r.Feedback.Basic = append([]string{}, r.Feedback.Basic...)
	}
	return r
}
