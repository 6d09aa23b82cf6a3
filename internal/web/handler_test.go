package web

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"

	"ballet-compare/internal/analyses"
	"ballet-compare/internal/analysisapi"
	"ballet-compare/internal/results"
	local "ballet-compare/internal/shared/storage/object/local"
	"ballet-compare/internal/shared/telemetry"
)

type stubServer struct {
	*httptest.Server
	requests atomic.Int32

	mu    sync.Mutex
	paths []string
}

func (s *stubServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// newStubAnalysisServer answers the three analysis endpoints. failBasic makes
// the basic feedback endpoint return 500.
func newStubAnalysisServer(t *testing.T, failBasic bool) *stubServer {
	t.Helper()
	s := &stubServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case analysisapi.PathScore:
			io.WriteString(w, `{"score": 87.5}`)
		case analysisapi.PathBasic:
			if failBasic {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, `{"detail":"pose extraction failed"}`)
				return
			}
			io.WriteString(w, `{"basic_feedback": ["Good extension", "Improve timing"]}`)
		case analysisapi.PathCommentary:
			io.WriteString(w, `{"chatgpt_feedback": "Nice work overall"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func setupWebRouter(t *testing.T, stub *stubServer, dispatch string) (*gin.Engine, *analyses.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	restore := telemetry.SetOutput(io.Discard)
	t.Cleanup(restore)

	client, err := analysisapi.New(stub.URL, analysisapi.WithMaxRetries(0), analysisapi.WithCallTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("analysisapi.New: %v", err)
	}
	repo := analyses.NewMemoryRepo()
	svc := &analyses.Service{
		Repo:     repo,
		Store:    local.New(t.TempDir()),
		API:      client,
		Dispatch: dispatch,
	}
	r := gin.New()
	NewHandler(svc, 1<<20).RegisterRoutes(r)
	results.NewHandler(svc).RegisterRoutes(r)
	return r, repo
}

func postVideos(t *testing.T, r http.Handler, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, name := range files {
		w, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		w.Write([]byte("frames of " + name))
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func parse(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestIndexRendersTwoDropZones(t *testing.T) {
	stub := newStubAnalysisServer(t, false)
	r, _ := setupWebRouter(t, stub, analyses.DispatchConcurrent)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	doc := parse(t, resp.Body.String())
	zones := doc.Find(".drop-zone")
	if zones.Length() != 2 {
		t.Fatalf("expected 2 drop zones, got %d", zones.Length())
	}
	zones.Each(func(i int, s *goquery.Selection) {
		if got := strings.TrimSpace(s.Find("small").Text()); got != "Drop a video or click to browse" {
			t.Fatalf("zone %d: unexpected label %q", i, got)
		}
	})
	if doc.Find(".drop-zone.missing").Length() != 0 {
		t.Fatalf("a fresh page should not flag missing zones")
	}
	if _, disabled := doc.Find("#analyzeBtn").Attr("disabled"); disabled {
		t.Fatalf("trigger should start enabled")
	}
}

func TestIndexMarkupForDropZoneScript(t *testing.T) {
	stub := newStubAnalysisServer(t, false)
	r, _ := setupWebRouter(t, stub, "")

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	doc := parse(t, resp.Body.String())

	form := doc.Find("form#analyzeForm")
	if notice, _ := form.Attr("data-missing-notice"); notice != "Please select two videos." {
		t.Fatalf("unexpected data-missing-notice %q", notice)
	}
	if busy, _ := form.Attr("data-busy-status"); busy != BusyStatus {
		t.Fatalf("unexpected data-busy-status %q", busy)
	}
	if enctype, _ := form.Attr("enctype"); enctype != "multipart/form-data" {
		t.Fatalf("unexpected enctype %q", enctype)
	}
	for _, field := range []string{"ideal_video", "user_video"} {
		zone := form.Find(`.drop-zone[data-field="` + field + `"]`)
		if zone.Length() != 1 {
			t.Fatalf("%s: expected one drop zone, got %d", field, zone.Length())
		}
		input := zone.Find(`input[type="file"]`)
		if name, _ := input.Attr("name"); name != field {
			t.Fatalf("%s: unexpected input name %q", field, name)
		}
		if _, hidden := input.Attr("hidden"); !hidden {
			t.Fatalf("%s: file input should be hidden", field)
		}
		if zone.Find("small").Length() != 1 {
			t.Fatalf("%s: expected one label element", field)
		}
	}
	if doc.Find("#analyzeBtn").Length() != 1 || doc.Find("#status").Length() != 1 {
		t.Fatalf("expected trigger button and status element")
	}
}

func TestAnalyzeMarksMissingZone(t *testing.T) {
	stub := newStubAnalysisServer(t, false)
	r, _ := setupWebRouter(t, stub, "")

	resp := postVideos(t, r, map[string]string{"ideal_video": "ideal.mp4"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	doc := parse(t, resp.Body.String())
	missing := doc.Find(".drop-zone.missing")
	if missing.Length() != 1 {
		t.Fatalf("expected one missing zone, got %d", missing.Length())
	}
	if field, _ := missing.Attr("data-field"); field != "user_video" {
		t.Fatalf("expected user_video flagged, got %q", field)
	}
	if missing.Find(".zone-missing").Length() != 1 {
		t.Fatalf("expected missing hint in flagged zone")
	}
	doc.Find(".drop-zone small").Each(func(i int, s *goquery.Selection) {
		if got := strings.TrimSpace(s.Text()); got != "Drop a video or click to browse" {
			t.Fatalf("zone %d: expected reset label, got %q", i, got)
		}
	})
}

func TestAnalyzeRequiresTwoVideos(t *testing.T) {
	stub := newStubAnalysisServer(t, false)
	r, repo := setupWebRouter(t, stub, analyses.DispatchConcurrent)

	for name, files := range map[string]map[string]string{
		"none": {},
		"one":  {"ideal_video": "ideal.mp4"},
	} {
		resp := postVideos(t, r, files)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
		doc := parse(t, resp.Body.String())
		if got := strings.TrimSpace(doc.Find(".notice").Text()); got != "Please select two videos." {
			t.Fatalf("%s: unexpected notice %q", name, got)
		}
	}
	if n := stub.requests.Load(); n != 0 {
		t.Fatalf("expected no analysis requests, got %d", n)
	}
	if items, _ := repo.ListRecent(context.Background(), 0); len(items) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(items))
	}
}

func TestAnalyzeStoresResultAndRedirects(t *testing.T) {
	for name, dispatch := range map[string]string{
		"default":    "",
		"sequential": analyses.DispatchSequential,
		"concurrent": analyses.DispatchConcurrent,
	} {
		t.Run(name, func(t *testing.T) {
			stub := newStubAnalysisServer(t, false)
			r, repo := setupWebRouter(t, stub, dispatch)

			resp := postVideos(t, r, map[string]string{"ideal_video": "ideal.mp4", "user_video": "me.mp4"})
			if resp.Code != http.StatusSeeOther {
				t.Fatalf("expected 303, got %d: %s", resp.Code, resp.Body.String())
			}
			location := resp.Header().Get("Location")
			if !strings.HasPrefix(location, "/results/") {
				t.Fatalf("unexpected Location %q", location)
			}
			id := strings.TrimPrefix(location, "/results/")

			stored, err := repo.GetByID(context.Background(), id)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			want := analyses.Result{
				Score: 87.5,
				Feedback: analyses.Feedback{
					Basic:   []string{"Good extension", "Improve timing"},
					ChatGPT: "Nice work overall",
				},
			}
			if stored.Result == nil || !reflect.DeepEqual(*stored.Result, want) {
				t.Fatalf("stored %+v, want %+v", stored.Result, want)
			}
			if n := stub.requests.Load(); n != 3 {
				t.Fatalf("expected 3 analysis requests, got %d", n)
			}
			if dispatch != analyses.DispatchConcurrent {
				want := []string{analysisapi.PathScore, analysisapi.PathBasic, analysisapi.PathCommentary}
				if got := stub.Paths(); !reflect.DeepEqual(got, want) {
					t.Fatalf("expected ordered calls %v, got %v", want, got)
				}
				if stored.DispatchMode != analyses.DispatchSequential {
					t.Fatalf("expected sequential dispatch, got %q", stored.DispatchMode)
				}
			}

			page := httptest.NewRecorder()
			r.ServeHTTP(page, httptest.NewRequest(http.MethodGet, location, nil))
			if page.Code != http.StatusOK {
				t.Fatalf("expected 200 for result page, got %d", page.Code)
			}
			for _, s := range []string{"87.5", "Good extension<br>Improve timing", "Nice work overall"} {
				if !strings.Contains(page.Body.String(), s) {
					t.Fatalf("expected %q on result page", s)
				}
			}
		})
	}
}

func TestAnalyzeBasicFeedbackFailure(t *testing.T) {
	stub := newStubAnalysisServer(t, true)
	r, repo := setupWebRouter(t, stub, analyses.DispatchSequential)

	resp := postVideos(t, r, map[string]string{"ideal_video": "ideal.mp4", "user_video": "me.mp4"})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if loc := resp.Header().Get("Location"); loc != "" {
		t.Fatalf("expected no redirect, got %q", loc)
	}
	doc := parse(t, resp.Body.String())
	status := strings.TrimSpace(doc.Find("#status").Text())
	if !strings.HasPrefix(status, "An error occurred: ") || !strings.Contains(status, "http status 500") {
		t.Fatalf("unexpected status %q", status)
	}
	if _, disabled := doc.Find("#analyzeBtn").Attr("disabled"); disabled {
		t.Fatalf("trigger should be enabled again")
	}
	// Sequential dispatch stops before the commentary call.
	if n := stub.requests.Load(); n != 2 {
		t.Fatalf("expected 2 analysis requests, got %d", n)
	}

	items, _ := repo.ListRecent(context.Background(), 0)
	if len(items) != 1 || items[0].Status != analyses.StatusFailed || items[0].Result != nil {
		t.Fatalf("unexpected stored analyses %+v", items)
	}
}

func TestStaticAssetsServed(t *testing.T) {
	stub := newStubAnalysisServer(t, false)
	r, _ := setupWebRouter(t, stub, analyses.DispatchConcurrent)

	for _, path := range []string{"/static/app.js", "/static/style.css"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestPageScriptResetsRestoredPage(t *testing.T) {
	script, err := staticFS.ReadFile("static/app.js")
	if err != nil {
		t.Fatalf("read app.js: %v", err)
	}
	src := string(script)
	i := strings.Index(src, `"pageshow"`)
	if i < 0 {
		t.Fatalf("expected a pageshow handler")
	}
	handler := src[i:]
	for _, want := range []string{"button.disabled = false", `status.textContent = ""`, "form.dataset.busyStatus"} {
		if !strings.Contains(handler, want) {
			t.Fatalf("pageshow handler should contain %q", want)
		}
	}
	if !strings.Contains(src, "status.textContent = form.dataset.busyStatus") {
		t.Fatalf("submit should show the busy status from the form")
	}
}
