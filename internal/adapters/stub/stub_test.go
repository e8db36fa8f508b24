package stub

import (
	"context"
	"strings"
	"testing"
	"time"

	"franklin/internal/domain/usecase"
)

// TestSampleAnswer picks the answer by keyword.
func TestSampleAnswer(t *testing.T) {
	if !strings.Contains(SampleAnswer("How is the ECONOMY?"), "small leak") {
		t.Fatal("economy answer not selected")
	}
	if !strings.Contains(SampleAnswer("what about inflation"), "Continental") {
		t.Fatal("inflation answer not selected")
	}
	if !strings.Contains(SampleAnswer("What is the national debt?"), "penny saved") {
		t.Fatal("default answer not selected")
	}
}

// TestVideoPendingThenDone reports pending for the configured polls.
func TestVideoPendingThenDone(t *testing.T) {
	ctx := context.Background()
	v := NewVideo(0, 2)
	handle, err := v.Submit(ctx, usecase.VideoRequest{Text: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	for i := 0; i < 2; i++ {
		st, _ := v.Status(ctx, handle)
		if st.State != usecase.VideoPending {
			t.Fatalf("poll %d state = %s", i+1, st.State)
		}
	}
	st, _ := v.Status(ctx, handle)
	if st.State != usecase.VideoDone || !strings.HasPrefix(st.ResultURL, "https://") {
		t.Fatalf("final status = %+v", st)
	}

	if st, _ := v.Status(ctx, "nope"); st.State != usecase.VideoFailed {
		t.Fatalf("unknown handle state = %s", st.State)
	}
}

// TestLatencyHonoursContext returns early when the caller gives up.
func TestLatencyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	txt := &Text{Latency: time.Minute}
	if _, err := txt.Generate(ctx, "q"); err == nil {
		t.Fatal("expected context error")
	}
}

// TestProvidersWithoutSpeech omits the speech stage.
func TestProvidersWithoutSpeech(t *testing.T) {
	if p := Providers(0, 0, false); p.Speech != nil {
		t.Fatal("speech provider set while disabled")
	}
	if p := Providers(0, 0, true); p.Speech == nil || p.SpeechName == "" {
		t.Fatal("speech provider missing")
	}
}
