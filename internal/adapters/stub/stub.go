// Package stub provides canned providers for demos and local runs without API keys.
// They drive the same state machine as the real providers.
package stub

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"franklin/internal/domain/usecase"
)

var SampleVideos = []string{
	"https://storage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ElephantsDream.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ForBiggerBlazes.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ForBiggerEscapes.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ForBiggerFun.mp4",
}

var sampleAnswers = map[string]string{
	"default":   "The national debt is a burden we place upon future generations. As I once wrote, 'Think what you do when you run in debt; you give to another power over your liberty.' Today's debt, exceeding $34 trillion, would be incomprehensible in my day. We fought for economic freedom from Britain, yet now America binds itself with chains of financial obligation. Remember, a penny saved is a penny earned, but trillions borrowed is liberty spurned.",
	"economy":   "The economy of our young nation was built on fiscal responsibility. I advised in Poor Richard's Almanack, 'Beware of little expenses; a small leak will sink a great ship.' Today's national debt would appear as an unfathomable leak. Your federal government now spends far beyond its means, creating obligations your children must honor. This practice contradicts the very principles of liberty we fought to establish.",
	"inflation": "Inflation is taxation without legislation. When money loses value, it is the common citizen who suffers most. In my day, we struggled with the devaluation of Continental currency, which led to the phrase 'not worth a Continental.' Today's monetary policies of unlimited printing would horrify the founders who understood that sound money is essential to a republic's survival.",
}

func SampleAnswer(question string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "economy"):
		return sampleAnswers["economy"]
	case strings.Contains(q, "inflation"):
		return sampleAnswers["inflation"]
	default:
		return sampleAnswers["default"]
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Text struct {
	Latency time.Duration
}

func (s *Text) Generate(ctx context.Context, question string) (string, error) {
	if err := wait(ctx, s.Latency); err != nil {
		return "", err
	}
	return SampleAnswer(question), nil
}

type Speech struct {
	Latency time.Duration
}

func (s *Speech) Synthesize(ctx context.Context, jobID, _ string) (string, error) {
	if err := wait(ctx, s.Latency); err != nil {
		return "", err
	}
	return "https://storage.example.com/franklin-audio-" + jobID + ".mp3", nil
}

// Video reports every render as pending for PendingPolls status calls, then done.
type Video struct {
	Latency      time.Duration
	PendingPolls int

	mu    sync.Mutex
	polls map[string]int
	urls  map[string]string
}

func NewVideo(latency time.Duration, pendingPolls int) *Video {
	return &Video{
		Latency:      latency,
		PendingPolls: pendingPolls,
		polls:        make(map[string]int),
		urls:         make(map[string]string),
	}
}

func (s *Video) Submit(ctx context.Context, _ usecase.VideoRequest) (string, error) {
	if err := wait(ctx, s.Latency); err != nil {
		return "", err
	}
	handle := "stub-" + uuid.NewString()

	s.mu.Lock()
	s.urls[handle] = SampleVideos[rand.Intn(len(SampleVideos))]
	s.mu.Unlock()
	return handle, nil
}

func (s *Video) Status(_ context.Context, handle string) (usecase.VideoStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	url, ok := s.urls[handle]
	if !ok {
		return usecase.VideoStatus{State: usecase.VideoFailed, Reason: "unknown render " + handle}, nil
	}
	s.polls[handle]++
	if s.polls[handle] <= s.PendingPolls {
		return usecase.VideoStatus{State: usecase.VideoPending}, nil
	}
	delete(s.polls, handle)
	delete(s.urls, handle)
	return usecase.VideoStatus{State: usecase.VideoDone, ResultURL: url}, nil
}

func Providers(latency time.Duration, pendingPolls int, withSpeech bool) usecase.Providers {
	p := usecase.Providers{
		Text:      &Text{Latency: latency},
		Video:     NewVideo(latency, pendingPolls),
		TextName:  "stub-text",
		VideoName: "stub-video",
	}
	if withSpeech {
		p.Speech = &Speech{Latency: latency}
		p.SpeechName = "stub-speech"
	}
	return p
}
