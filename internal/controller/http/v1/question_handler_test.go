package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"franklin/internal/adapters/stub"
	"franklin/internal/domain/entity"
	"franklin/internal/domain/usecase"
	"franklin/internal/notify"
	"franklin/internal/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var quiet = log.New(io.Discard, "", 0)

type testServer struct {
	router *gin.Engine
	store  *memory.JobStore
	hub    *notify.Hub
	orch   *usecase.Orchestrator
}

func newTestServer(t *testing.T, opts usecase.Options) *testServer {
	t.Helper()
	store := memory.NewJobStore()
	hub := notify.NewHub()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	orch := usecase.NewOrchestrator(store, hub, stub.Providers(0, 2, true), opts, quiet)
	t.Cleanup(orch.Reaper().Stop)

	return &testServer{
		router: NewRouter(RouterDeps{
			Questions: orch,
			Jobs:      store,
			Events:    hub,
			Config:    map[string]any{"store": "memory"},
			Logger:    quiet,
		}),
		store: store,
		hub:   hub,
		orch:  orch,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, out
}

// TestSubmitPollFetch submits, polls status until ready and fetches the result.
func TestSubmitPollFetch(t *testing.T) {
	s := newTestServer(t, usecase.Options{})

	w, body := do(t, s.router, http.MethodPost, "/api/v1/question", `{"question":"What is the national debt?"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit code = %d body=%s", w.Code, w.Body.String())
	}
	jobID, _ := body["jobId"].(string)
	if jobID == "" || body["requestId"] != jobID || body["status"] != "processing" {
		t.Fatalf("unexpected submit body: %v", body)
	}
	if body["statusUrl"] != "/api/v1/question/"+jobID+"/status" {
		t.Fatalf("statusUrl = %v", body["statusUrl"])
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		w, status := do(t, s.router, http.MethodGet, "/api/v1/question/"+jobID+"/status", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d", w.Code)
		}
		if _, ok := status["result"]; ok {
			t.Fatal("status exposes the result")
		}
		if status["resultReady"] == true {
			break
		}
		if status["status"] == "failed" {
			t.Fatalf("job failed: %v", status["error"])
		}
		if time.Now().After(deadline) {
			t.Fatal("job never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w, result := do(t, s.router, http.MethodGet, "/api/v1/question/"+jobID+"/result", "")
	if w.Code != http.StatusOK {
		t.Fatalf("result code = %d", w.Code)
	}
	if answer, _ := result["answer"].(string); answer == "" {
		t.Fatalf("empty answer: %v", result)
	}
	if video, _ := result["videoUrl"].(string); !strings.HasPrefix(video, "https://") {
		t.Fatalf("videoUrl = %v", result["videoUrl"])
	}
	if result["status"] != "completed" {
		t.Fatalf("result status = %v", result["status"])
	}
}

// TestSubmitRejectsMissingQuestion never creates a job for bad input.
func TestSubmitRejectsMissingQuestion(t *testing.T) {
	s := newTestServer(t, usecase.Options{})

	for _, body := range []string{`{}`, `{"question":"   "}`, `not json`, ""} {
		w, _ := do(t, s.router, http.MethodPost, "/api/v1/question", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q code = %d, want 400", body, w.Code)
		}
	}
	jobs, _ := s.store.List(context.Background())
	if len(jobs) != 0 {
		t.Fatalf("created %d jobs", len(jobs))
	}

	w, _ := do(t, s.router, http.MethodGet, "/api/v1/question/9b2f7c52-0000-4000-8000-000000000000/status", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status of unknown id = %d, want 404", w.Code)
	}
}

// TestResultNotReady reports progress instead of a result.
func TestResultNotReady(t *testing.T) {
	s := newTestServer(t, usecase.Options{})
	_ = s.store.Put(context.Background(), entity.NewJob("job-1", "q", time.Now()))

	w, body := do(t, s.router, http.MethodGet, "/api/v1/question/job-1/result", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	if body["status"] != "processing" || body["stage"] != "thinking" || body["progress"] != float64(0) {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["jobError"]; ok {
		t.Fatal("processing job reported an error")
	}
}

// TestResultOfFailedJob includes the job error.
func TestResultOfFailedJob(t *testing.T) {
	s := newTestServer(t, usecase.Options{ConfigErr: &usecase.ConfigError{Missing: []string{"OPENAI_API_KEY"}}})

	w, body := do(t, s.router, http.MethodPost, "/api/v1/question", `{"question":"Hello?"}`)
	if w.Code != http.StatusAccepted || body["status"] != "failed" {
		t.Fatalf("submit code = %d body = %v", w.Code, body)
	}
	jobID := body["jobId"].(string)

	w, status := do(t, s.router, http.MethodGet, "/api/v1/question/"+jobID+"/status", "")
	if w.Code != http.StatusOK || status["resultReady"] != false {
		t.Fatalf("status code = %d body = %v", w.Code, status)
	}

	w, result := do(t, s.router, http.MethodGet, "/api/v1/question/"+jobID+"/result", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("result code = %d", w.Code)
	}
	jobErr, ok := result["jobError"].(map[string]any)
	if !ok || jobErr["kind"] != "configuration" {
		t.Fatalf("unexpected jobError: %v", result["jobError"])
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*entity.Job, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (brokenStore) List(context.Context) ([]*entity.Job, error) {
	return nil, errors.New("dial tcp: connection refused")
}

// TestStoreUnavailableIsNotNotFound answers 503 when the store cannot be read.
func TestStoreUnavailableIsNotNotFound(t *testing.T) {
	r := NewRouter(RouterDeps{Jobs: brokenStore{}, Logger: quiet})

	for _, path := range []string{"/api/v1/question/job-1/status", "/api/v1/question/job-1/result", "/api/v1/debug/jobs"} {
		w, _ := do(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s code = %d, want 503", path, w.Code)
		}
	}
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, string) (*entity.Job, error) {
	return nil, errors.New("store job: connection refused")
}

// TestSubmitStoreFailure returns 500 when the job cannot be recorded.
func TestSubmitStoreFailure(t *testing.T) {
	r := NewRouter(RouterDeps{Questions: failingSubmitter{}, Jobs: brokenStore{}, Logger: quiet})
	w, body := do(t, r, http.MethodPost, "/api/v1/question", `{"question":"Hello?"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", w.Code)
	}
	if body["details"] == nil {
		t.Fatalf("missing details: %v", body)
	}
}

// TestDebugEndpoints lists jobs without results and echoes the config summary.
func TestDebugEndpoints(t *testing.T) {
	s := newTestServer(t, usecase.Options{})
	job := entity.NewJob("job-1", "q", time.Now())
	job.Status = entity.StatusCompleted
	job.Stage = entity.StageCompleted
	job.Result = &entity.JobResult{Answer: "secret answer", VideoURL: "https://v"}
	_ = s.store.Put(context.Background(), job)

	w, body := do(t, s.router, http.MethodGet, "/api/v1/debug/jobs", "")
	if w.Code != http.StatusOK || body["totalRequests"] != float64(1) {
		t.Fatalf("code = %d body = %v", w.Code, body)
	}
	if strings.Contains(w.Body.String(), "secret answer") {
		t.Fatal("debug listing exposes results")
	}

	w, cfg := do(t, s.router, http.MethodGet, "/api/v1/debug/config", "")
	if w.Code != http.StatusOK || cfg["store"] != "memory" {
		t.Fatalf("config code = %d body = %v", w.Code, cfg)
	}

	w, health := do(t, s.router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, health)
	}
}
