package franklin

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"franklin/internal/adapters/stub"
	"franklin/internal/bootstrap"
	"franklin/internal/config"
	v1 "franklin/internal/controller/http/v1"
	"franklin/internal/domain/usecase"
	"franklin/internal/notify"
	"franklin/internal/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newService(t *testing.T, providers usecase.Providers, opts usecase.Options) *httptest.Server {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	store := memory.NewJobStore()
	hub := notify.NewHub()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	orch := usecase.NewOrchestrator(store, hub, providers, opts, quiet)
	t.Cleanup(orch.Reaper().Stop)

	srv := httptest.NewServer(v1.NewRouter(v1.RouterDeps{
		Questions: orch,
		Jobs:      store,
		Events:    hub,
		Logger:    quiet,
	}))
	t.Cleanup(srv.Close)
	return srv
}

type progressLog struct {
	mu      sync.Mutex
	updates []Update
}

func (p *progressLog) record(u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *progressLog) all() []Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Update(nil), p.updates...)
}

// TestAskReturnsAnswer runs a question end to end with push and poll.
func TestAskReturnsAnswer(t *testing.T) {
	srv := newService(t, stub.Providers(time.Millisecond, 3, true), usecase.Options{})
	c := New(srv.URL, WithPolling(10*time.Millisecond, 500))

	var progress progressLog
	res, err := c.Ask(context.Background(), "How is the economy?", progress.record)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(res.Answer, "small leak") {
		t.Fatalf("answer = %q", res.Answer)
	}
	if !strings.HasPrefix(res.VideoURL, "https://") || res.AudioURL == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	updates := progress.all()
	if len(updates) == 0 {
		t.Fatal("no progress reported")
	}
	prev := -1
	for _, u := range updates {
		if u.Progress < prev {
			t.Fatalf("progress went backwards: %d after %d", u.Progress, prev)
		}
		prev = u.Progress
	}
}

// TestAskPollOnly completes without the socket.
func TestAskPollOnly(t *testing.T) {
	srv := newService(t, stub.Providers(0, 2, false), usecase.Options{})
	c := New(srv.URL, WithPolling(5*time.Millisecond, 1000), WithoutPush())

	res, err := c.Ask(context.Background(), "What is the national debt?", nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.Answer == "" || res.AudioURL != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

// TestAskFailedJob surfaces the job error.
func TestAskFailedJob(t *testing.T) {
	srv := newService(t, stub.Providers(0, 0, true), usecase.Options{
		ConfigErr: &usecase.ConfigError{Missing: []string{"OPENAI_API_KEY"}},
	})
	c := New(srv.URL, WithPolling(5*time.Millisecond, 100))

	_, err := c.Ask(context.Background(), "Hello?", nil)
	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want JobFailedError", err)
	}
	if failed.Err.Kind != "configuration" {
		t.Fatalf("kind = %q", failed.Err.Kind)
	}
}

// TestAskEmptyQuestion returns the 400 as an APIError.
func TestAskEmptyQuestion(t *testing.T) {
	srv := newService(t, stub.Providers(0, 0, true), usecase.Options{})
	_, err := New(srv.URL).Ask(context.Background(), "  ", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want APIError 400", err)
	}
}

// TestWaitUnknownJob aborts on 404.
func TestWaitUnknownJob(t *testing.T) {
	srv := newService(t, stub.Providers(0, 0, true), usecase.Options{})
	c := New(srv.URL, WithPolling(5*time.Millisecond, 100))

	_, err := c.Wait(context.Background(), "00000000-0000-4000-8000-000000000000", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want APIError 404", err)
	}
}

// TestWaitCeiling gives up after interval times max polls.
func TestWaitCeiling(t *testing.T) {
	srv := newService(t, stub.Providers(0, 1_000_000, true), usecase.Options{
		PollInterval:    time.Second,
		MaxPollAttempts: 1000,
	})
	c := New(srv.URL, WithPolling(10*time.Millisecond, 5))

	start := time.Now()
	_, err := c.Ask(context.Background(), "Hello?", nil)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("wait took %s", elapsed)
	}
}

// TestWaitRetriesUnavailableStore keeps polling through 503 responses.
func TestWaitRetriesUnavailableStore(t *testing.T) {
	var statusCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/question/job-1/status", func(w http.ResponseWriter, r *http.Request) {
		if statusCalls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Job state temporarily unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"jobId":"job-1","status":"completed","stage":"completed","progress":100,"resultReady":true}`))
	})
	mux.HandleFunc("/api/v1/question/job-1/result", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobId":"job-1","status":"completed","answer":"Well done is better than well said.","videoUrl":"https://v.example.com/1.mp4"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, WithPolling(5*time.Millisecond, 100), WithoutPush())
	res, err := c.Wait(context.Background(), "job-1", nil)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.Answer != "Well done is better than well said." {
		t.Fatalf("answer = %q", res.Answer)
	}
	if statusCalls.Load() != 3 {
		t.Fatalf("status calls = %d, want 3", statusCalls.Load())
	}
}

// TestWaitFallsBackWhenSocketMissing polls when the socket endpoint is absent.
func TestWaitFallsBackWhenSocketMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/question/job-1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobId":"job-1","status":"failed","stage":"animating","progress":80,"error":{"kind":"timeout","message":"Video generation timed out"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, WithPolling(5*time.Millisecond, 100))
	_, err := c.Wait(context.Background(), "job-1", nil)
	var failed *JobFailedError
	if !errors.As(err, &failed) || failed.Err.Kind != "timeout" {
		t.Fatalf("err = %v, want timeout JobFailedError", err)
	}
}

// TestSubscribeKeepsUpdatesBeforeAck delivers an update sent ahead of the join ack.
func TestSubscribeKeepsUpdatesBeforeAck(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/socket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join socketControl
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		_ = conn.WriteJSON(socketMessage{
			Event:  "process:" + join.JobID + ":update",
			Update: Update{JobID: join.JobID, Stage: "completed", Progress: 100, Status: "completed"},
		})
		_ = conn.WriteJSON(socketMessage{Event: "joined", Update: Update{JobID: join.JobID}})

		// hold the socket open until the client hangs up
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got := make(chan Update, 4)
	stop, err := New(srv.URL).Subscribe(context.Background(), "job-1", func(u Update) { got <- u })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	select {
	case u := <-got:
		if u.Status != "completed" || u.Progress != 100 {
			t.Fatalf("update = %+v", u)
		}
	default:
		t.Fatal("update sent before the ack was dropped")
	}
}

// TestAskDefaultStubTiming answers within ten seconds on the default stub setup.
func TestAskDefaultStubTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("runs on real default timings")
	}
	cfg, err := config.FromEnv(func(key string) (string, bool) {
		if key == "STUB_PROVIDERS" {
			return "true", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	providers, err := bootstrap.Providers(context.Background(), cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	srv := newService(t, providers, bootstrap.Options(cfg))

	start := time.Now()
	res, err := New(srv.URL).Ask(context.Background(), "What is the national debt?", nil)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("answer took %s, want under 10s", elapsed)
	}
	if res.Answer == "" || !strings.HasPrefix(res.VideoURL, "https://") {
		t.Fatalf("unexpected result: %+v", res)
	}
}
