package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ballet-compare/internal/analysisapi"
	"ballet-compare/internal/llm"
	"ballet-compare/internal/shared/metrics"
	"ballet-compare/internal/shared/storage/object"
	"ballet-compare/internal/shared/telemetry"
	"ballet-compare/internal/shared/util"
)

const (
	DispatchConcurrent = "concurrent"
	DispatchSequential = "sequential"

	CommentaryRemote = "remote"
	CommentaryOpenAI = "openai"

	defaultListLimit = 20
	maxListLimit     = 100
)

// API is the external analysis server.
type API interface {
	Score(ctx context.Context, v analysisapi.Videos) (float64, error)
	BasicFeedback(ctx context.Context, v analysisapi.Videos) ([]string, error)
	Commentary(ctx context.Context, v analysisapi.Videos) (string, error)
}

// Upload is one submitted video. A nil Body means the zone was left empty.
type Upload struct {
	FileName string
	Body     io.Reader
}

// Service contains business logic for analyses.
type Service struct {
	Repo             Repo
	Store            object.ObjectStore
	API              API
	LLM              llm.Client
	Dispatch         string
	CommentarySource string
	Now              func() time.Time

	mu     sync.Mutex
	runs   map[string]*run
	wg     sync.WaitGroup
	closed bool
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Create spools both videos into the object store and records a queued
// analysis. Nothing is sent to the analysis API.
func (s *Service) Create(ctx context.Context, ideal, user Upload) (Analysis, error) {
	if ideal.Body == nil || user.Body == nil {
		return Analysis{}, ErrMissingVideos
	}
	id := uuid.NewString()

	idealVideo, err := s.spool(ctx, id, ideal)
	if err != nil {
		return Analysis{}, fmt.Errorf("store ideal video: %w", err)
	}
	userVideo, err := s.spool(ctx, id, user)
	if err != nil {
		s.discardVideos(ctx, id, idealVideo)
		return Analysis{}, fmt.Errorf("store user video: %w", err)
	}

	now := s.now()
	analysis := Analysis{
		ID:           id,
		Status:       StatusQueued,
		IdealVideo:   idealVideo,
		UserVideo:    userVideo,
		DispatchMode: s.dispatchMode(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		s.discardVideos(ctx, id, idealVideo, userVideo)
		return Analysis{}, fmt.Errorf("create analysis: %w", err)
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":    requestIDFromContext(ctx),
		"analysis_id":   id,
		"status":        StatusQueued,
		"dispatch_mode": analysis.DispatchMode,
		"ideal_bytes":   idealVideo.SizeBytes,
		"user_bytes":    userVideo.SizeBytes,
	})
	return analysis, nil
}

// Run executes a queued analysis and blocks until it reaches a terminal
// status. Canceling ctx, or calling Cancel, cancels the run.
func (s *Service) Run(ctx context.Context, analysisID string) (Analysis, error) {
	runCtx, finish, err := s.track(ctx, analysisID)
	if err != nil {
		s.abandon(ctx, analysisID, err)
		return Analysis{}, err
	}
	defer finish()
	return s.execute(runCtx, analysisID)
}

// Start executes a queued analysis in the background. The run outlives ctx
// and stops only through Cancel or Shutdown.
func (s *Service) Start(ctx context.Context, analysisID string) error {
	runCtx, finish, err := s.track(backgroundWithRequestID(ctx), analysisID)
	if err != nil {
		s.abandon(ctx, analysisID, err)
		return err
	}
	go func() {
		defer finish()
		_, _ = s.execute(runCtx, analysisID)
	}()
	return nil
}

// Submit creates an analysis and starts it in the background.
func (s *Service) Submit(ctx context.Context, ideal, user Upload) (Analysis, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Analysis{}, ErrShuttingDown
	}

	analysis, err := s.Create(ctx, ideal, user)
	if err != nil {
		return Analysis{}, err
	}
	if err := s.Start(ctx, analysis.ID); err != nil {
		return Analysis{}, err
	}
	return analysis, nil
}

// Cancel stops an in-flight analysis and waits for it to record the
// canceled status. A queued analysis that is not running is marked canceled
// directly.
func (s *Service) Cancel(ctx context.Context, analysisID string) (Analysis, error) {
	s.mu.Lock()
	r, running := s.runs[analysisID]
	s.mu.Unlock()

	if running {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return Analysis{}, ctx.Err()
		}
		analysis, err := s.Repo.GetByID(ctx, analysisID)
		if err != nil {
			return Analysis{}, err
		}
		if analysis.Status != StatusCanceled {
			return analysis, ErrNotCancelable
		}
		return analysis, nil
	}

	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.Finished() {
		return analysis, ErrNotCancelable
	}
	if err := s.Repo.Fail(ctx, analysisID, StatusCanceled, ErrCanceled.Error(), s.now()); err != nil {
		return Analysis{}, fmt.Errorf("mark canceled: %w", err)
	}
	metrics.IncAnalysisCanceled()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       analysisID,
		"status":            StatusCanceled,
		"status_transition": analysis.Status + "->" + StatusCanceled,
	})
	s.discardVideos(ctx, analysisID, analysis.IdealVideo, analysis.UserVideo)
	return s.Repo.GetByID(ctx, analysisID)
}

// Shutdown refuses new runs, cancels the ones in flight and waits for them
// to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns an analysis by ID.
func (s *Service) Get(ctx context.Context, analysisID string) (Analysis, error) {
	return s.Repo.GetByID(ctx, analysisID)
}

// List returns recent analyses, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.Repo.ListRecent(ctx, limit)
}

// abandon marks a queued analysis canceled when the service refused to run
// it during shutdown.
func (s *Service) abandon(ctx context.Context, analysisID string, err error) {
	if !errors.Is(err, ErrShuttingDown) {
		return
	}
	_, _ = s.Cancel(context.WithoutCancel(ctx), analysisID)
}

func (s *Service) track(ctx context.Context, analysisID string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrShuttingDown
	}
	if s.runs == nil {
		s.runs = make(map[string]*run)
	}
	if _, ok := s.runs[analysisID]; ok {
		return nil, nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[analysisID] = r
	s.wg.Add(1)
	finish := func() {
		cancel()
		s.mu.Lock()
		delete(s.runs, analysisID)
		s.mu.Unlock()
		close(r.done)
		s.wg.Done()
	}
	return runCtx, finish, nil
}

func (s *Service) execute(ctx context.Context, analysisID string) (out Analysis, err error) {
	// Status writes must land even after the run itself is canceled.
	writeCtx := context.WithoutCancel(ctx)

	analysis, err := s.Repo.GetByID(writeCtx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.Status != StatusQueued {
		return analysis, ErrNotRunnable
	}
	if ctx.Err() != nil {
		return s.cancelAnalysis(writeCtx, analysis, nil)
	}

	startedAt := s.now()
	if err := s.Repo.UpdateStatus(writeCtx, analysisID, StatusProcessing, startedAt); err != nil {
		return s.failAnalysis(writeCtx, analysis, fmt.Errorf("set processing: %w", err), nil)
	}
	analysis.Status = StatusProcessing
	analysis.StartedAt = &startedAt
	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       analysisID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
		"dispatch_mode":     analysis.DispatchMode,
	})

	defer func() {
		if r := recover(); r != nil {
			out, err = s.failAnalysis(writeCtx, analysis, fmt.Errorf("panic: %v", r), &startedAt)
		}
	}()

	result, err := s.collect(ctx, analysis)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return s.cancelAnalysis(writeCtx, analysis, &startedAt)
		}
		return s.failAnalysis(writeCtx, analysis, err, &startedAt)
	}

	completedAt := s.now()
	if err := s.Repo.Complete(writeCtx, analysisID, result, completedAt); err != nil {
		return s.failAnalysis(writeCtx, analysis, fmt.Errorf("store result: %w", err), &startedAt)
	}
	analysis.Status = StatusCompleted
	analysis.Result = &result
	analysis.CompletedAt = &completedAt
	analysis.UpdatedAt = completedAt

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       analysisID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	s.discardVideos(writeCtx, analysisID, analysis.IdealVideo, analysis.UserVideo)
	return analysis, nil
}

// collect issues the analysis calls and merges their answers.
func (s *Service) collect(ctx context.Context, analysis Analysis) (Result, error) {
	videos := s.videos(analysis)
	remoteCommentary := s.commentarySource() == CommentaryRemote

	var (
		score      float64
		basic      []string
		commentary string
	)

	if analysis.DispatchMode == DispatchConcurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			score, err = s.API.Score(gctx, videos)
			return err
		})
		g.Go(func() error {
			var err error
			basic, err = s.API.BasicFeedback(gctx, videos)
			return err
		})
		if remoteCommentary {
			g.Go(func() error {
				var err error
				commentary, err = s.API.Commentary(gctx, videos)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
		if !remoteCommentary {
			var err error
			if commentary, err = s.generateCommentary(ctx, analysis.ID, score, basic); err != nil {
				return Result{}, err
			}
		}
	} else {
		var err error
		if score, err = s.API.Score(ctx, videos); err != nil {
			return Result{}, err
		}
		if basic, err = s.API.BasicFeedback(ctx, videos); err != nil {
			return Result{}, err
		}
		if remoteCommentary {
			commentary, err = s.API.Commentary(ctx, videos)
		} else {
			commentary, err = s.generateCommentary(ctx, analysis.ID, score, basic)
		}
		if err != nil {
			return Result{}, err
		}
	}

	return Result{
		Score: score,
		Feedback: Feedback{
			Basic:   basic,
			ChatGPT: commentary,
		},
	}, nil
}

// generateCommentary asks the LLM for coaching text. Provider failures turn
// into fallback text; only cancellation is returned as an error.
func (s *Service) generateCommentary(ctx context.Context, analysisID string, score float64, basic []string) (string, error) {
	if s.LLM == nil {
		return llm.FallbackCommentary(llm.ErrNotConfigured), nil
	}
	text, err := s.LLM.Commentary(ctx, llm.CommentaryInput{Score: score, BasicFeedback: basic})
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	telemetry.Warn("analysis.commentary_failed", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"analysis_id": analysisID,
		"error":       sanitizeError(err),
	})
	return llm.FallbackCommentary(err), nil
}

func (s *Service) failAnalysis(ctx context.Context, analysis Analysis, err error, startedAt *time.Time) (Analysis, error) {
	msg := sanitizeError(err)
	completedAt := s.now()
	if updateErr := s.Repo.Fail(ctx, analysis.ID, StatusFailed, msg, completedAt); updateErr != nil {
		telemetry.Error("analysis.fail_update", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": analysis.ID,
			"error":       updateErr,
			"original":    msg,
		})
	}
	metrics.IncAnalysisFailed()
	if startedAt != nil {
		metrics.ObserveAnalysisDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Error("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       analysis.ID,
		"status":            StatusFailed,
		"status_transition": analysis.Status + "->" + StatusFailed,
		"duration_ms":       durationMs(startedAt, &completedAt),
		"error":             msg,
	})
	analysis.Status = StatusFailed
	analysis.ErrorMessage = &msg
	analysis.CompletedAt = &completedAt
	s.discardVideos(ctx, analysis.ID, analysis.IdealVideo, analysis.UserVideo)
	return analysis, err
}

func (s *Service) cancelAnalysis(ctx context.Context, analysis Analysis, startedAt *time.Time) (Analysis, error) {
	msg := ErrCanceled.Error()
	completedAt := s.now()
	if err := s.Repo.Fail(ctx, analysis.ID, StatusCanceled, msg, completedAt); err != nil {
		telemetry.Error("analysis.fail_update", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": analysis.ID,
			"error":       err,
		})
	}
	metrics.IncAnalysisCanceled()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"analysis_id":       analysis.ID,
		"status":            StatusCanceled,
		"status_transition": analysis.Status + "->" + StatusCanceled,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
	analysis.Status = StatusCanceled
	analysis.ErrorMessage = &msg
	analysis.CompletedAt = &completedAt
	s.discardVideos(ctx, analysis.ID, analysis.IdealVideo, analysis.UserVideo)
	return analysis, ErrCanceled
}

func (s *Service) spool(ctx context.Context, analysisID string, up Upload) (Video, error) {
	name := util.DisplayName(up.FileName)
	if name == "" {
		name = "video"
	}
	key, size, mimeType, err := s.Store.Save(ctx, analysisID, name, up.Body)
	if err != nil {
		return Video{}, err
	}
	return Video{FileName: name, StorageKey: key, SizeBytes: size, MimeType: mimeType}, nil
}

func (s *Service) videos(analysis Analysis) analysisapi.Videos {
	open := func(key string) func(context.Context) (io.ReadCloser, error) {
		return func(ctx context.Context) (io.ReadCloser, error) {
			return s.Store.Open(ctx, key)
		}
	}
	return analysisapi.Videos{
		Ideal: analysisapi.Video{FileName: analysis.IdealVideo.FileName, Open: open(analysis.IdealVideo.StorageKey)},
		User:  analysisapi.Video{FileName: analysis.UserVideo.FileName, Open: open(analysis.UserVideo.StorageKey)},
	}
}

// discardVideos removes spooled uploads once they are no longer needed.
func (s *Service) discardVideos(ctx context.Context, analysisID string, videos ...Video) {
	for _, v := range videos {
		if v.StorageKey == "" {
			continue
		}
		if err := s.Store.Delete(ctx, v.StorageKey); err != nil {
			telemetry.Warn("analysis.video_cleanup_failed", map[string]any{
				"analysis_id": analysisID,
				"key":         v.StorageKey,
				"error":       err,
			})
		}
	}
}

func (s *Service) dispatchMode() string {
	if s.Dispatch == DispatchConcurrent {
		return DispatchConcurrent
	}
	return DispatchSequential
}

func (s *Service) commentarySource() string {
	if s.CommentarySource == CommentaryOpenAI {
		return CommentaryOpenAI
	}
	return CommentaryRemote
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
