package analysisapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ballet-compare/internal/shared/telemetry"
)

func testVideos() Videos {
	open := func(body string) func(context.Context) (io.ReadCloser, error) {
		return func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		}
	}
	return Videos{
		Ideal: Video{FileName: "ideal.mp4", Open: open("ideal-bytes")},
		User:  Video{FileName: "user.mp4", Open: open("user-bytes")},
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetryInterval(time.Millisecond)}, opts...)
	c, err := New(srv.URL+"/", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClientSendsBothVideosAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		for field, want := range map[string]string{"ideal_video": "ideal-bytes", "user_video": "user-bytes"} {
			f, _, err := r.FormFile(field)
			if err != nil {
				t.Errorf("missing %s: %v", field, err)
				continue
			}
			got, _ := io.ReadAll(f)
			if string(got) != want {
				t.Errorf("%s body = %q", field, got)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case PathScore:
			io.WriteString(w, `{"score": 87.5}`)
		case PathBasic:
			io.WriteString(w, `{"basic_feedback": ["Good extension", "Improve timing"]}`)
		case PathCommentary:
			io.WriteString(w, `{"chatgpt_feedback": "Nice work overall"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	score, err := c.Score(ctx, testVideos())
	if err != nil || score != 87.5 {
		t.Fatalf("Score = %v, %v", score, err)
	}
	basic, err := c.BasicFeedback(ctx, testVideos())
	if err != nil || len(basic) != 2 || basic[0] != "Good extension" || basic[1] != "Improve timing" {
		t.Fatalf("BasicFeedback = %v, %v", basic, err)
	}
	commentary, err := c.Commentary(ctx, testVideos())
	if err != nil || commentary != "Nice work overall" {
		t.Fatalf("Commentary = %q, %v", commentary, err)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	restore := telemetry.SetOutput(io.Discard)
	defer restore()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"score": 70}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithMaxRetries(2))
	score, err := c.Score(context.Background(), testVideos())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 70 || calls.Load() != 3 {
		t.Fatalf("score=%v calls=%d", score, calls.Load())
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	restore := telemetry.SetOutput(io.Discard)
	defer restore()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithMaxRetries(1))
	_, err := c.BasicFeedback(context.Background(), testVideos())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusInternalServerError || statusErr.Endpoint != PathBasic {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad video", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Score(context.Background(), testVideos())
	if err == nil || !strings.Contains(err.Error(), "http status 422") {
		t.Fatalf("expected 422 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestClientRejectsNonJSONAndMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathScore:
			io.WriteString(w, `<html>oops</html>`)
		case PathBasic:
			io.WriteString(w, `{}`)
		case PathCommentary:
			io.WriteString(w, `{"chatgpt_feedback": null}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Score(ctx, testVideos())
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if _, err := c.BasicFeedback(ctx, testVideos()); err == nil || !strings.Contains(err.Error(), "missing basic_feedback") {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if _, err := c.Commentary(ctx, testVideos()); err == nil || !strings.Contains(err.Error(), "missing chatgpt_feedback") {
		t.Fatalf("expected missing field error, got %v", err)
	}
}

func TestClientRetriesAttemptTimeout(t *testing.T) {
	restore := telemetry.SetOutput(io.Discard)
	defer restore()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		io.WriteString(w, `{"score": 12.5}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithCallTimeout(50*time.Millisecond))
	score, err := c.Score(context.Background(), testVideos())
	if err != nil || score != 12.5 {
		t.Fatalf("Score = %v, %v", score, err)
	}
}

func TestClientStopsWhenContextCanceled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Commentary(ctx, testVideos())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry after cancel, got %d calls", calls.Load())
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error")
	}
}
