package analyses

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ballet-compare/internal/analysisapi"
	"ballet-compare/internal/llm"
	local "ballet-compare/internal/shared/storage/object/local"
	"ballet-compare/internal/shared/telemetry"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	seen  map[string]string

	score         float64
	basic         []string
	commentary    string
	scoreErr      error
	basicErr      error
	commentaryErr error

	// block makes every call wait until it is closed or ctx ends.
	block   chan struct{}
	started chan string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		score:      87.5,
		basic:      []string{"Good extension", "Improve timing"},
		commentary: "Nice work overall",
	}
}

func (f *fakeAPI) record(ctx context.Context, name string, v analysisapi.Videos) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	if f.seen == nil {
		f.seen = map[string]string{}
	}
	f.mu.Unlock()

	for field, video := range map[string]analysisapi.Video{"ideal": v.Ideal, "user": v.User} {
		rc, err := video.Open(ctx)
		if err != nil {
			return err
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		f.mu.Lock()
		f.seen[field] = string(body)
		f.mu.Unlock()
	}

	if f.started != nil {
		f.started <- name
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeAPI) Score(ctx context.Context, v analysisapi.Videos) (float64, error) {
	if err := f.record(ctx, "score", v); err != nil {
		return 0, err
	}
	return f.score, f.scoreErr
}

func (f *fakeAPI) BasicFeedback(ctx context.Context, v analysisapi.Videos) ([]string, error) {
	if err := f.record(ctx, "basic", v); err != nil {
		return nil, err
	}
	return f.basic, f.basicErr
}

func (f *fakeAPI) Commentary(ctx context.Context, v analysisapi.Videos) (string, error) {
	if err := f.record(ctx, "commentary", v); err != nil {
		return "", err
	}
	return f.commentary, f.commentaryErr
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeLLM struct {
	text  string
	err   error
	input llm.CommentaryInput
}

func (f *fakeLLM) Commentary(ctx context.Context, input llm.CommentaryInput) (string, error) {
	f.input = input
	return f.text, f.err
}

func newTestService(t *testing.T, api API) (*Service, *MemoryRepo) {
	t.Helper()
	restore := telemetry.SetOutput(io.Discard)
	t.Cleanup(restore)
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:  repo,
		Store: local.New(t.TempDir()),
		API:   api,
		Now:   func() time.Time { return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC) },
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, repo
}

func testUploads() (Upload, Upload) {
	return Upload{FileName: "ideal.mp4", Body: strings.NewReader("ideal-bytes")},
		Upload{FileName: `C:\fakepath\me.mp4`, Body: strings.NewReader("user-bytes")}
}

var errBoom = errors.New("boom")
