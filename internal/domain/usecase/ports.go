package usecase

import (
	"context"

	"franklin/internal/domain/entity"
)

// JobStore persists job records keyed by id. Get and Merge return
// entity.ErrJobNotFound for unknown ids; any other error means the state is
// temporarily unknown.
type JobStore interface {
	Get(ctx context.Context, id string) (*entity.Job, error)
	Put(ctx context.Context, job *entity.Job) error
	Merge(ctx context.Context, id string, patch entity.JobPatch) (*entity.Job, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*entity.Job, error)
}

// Notifier delivers progress events. Publish is best effort and must not block.
type Notifier interface {
	Publish(ctx context.Context, event entity.ProgressEvent)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job *entity.Job) error
}

type TextGenerator interface {
	Generate(ctx context.Context, question string) (string, error)
}

// SpeechSynthesizer turns text into a publicly retrievable audio URL.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, jobID, text string) (string, error)
}

type VideoRequest struct {
	// AudioURL is used when set, otherwise Text is spoken by the provider.
	AudioURL       string
	Text           string
	SourceImageURL string
}

type VideoState string

const (
	VideoPending VideoState = "pending"
	VideoDone    VideoState = "done"
	VideoFailed  VideoState = "failed"
)

type VideoStatus struct {
	State     VideoState
	ResultURL string
	Reason    string
}

// VideoSynthesizer renders a talking head asynchronously: Submit returns a
// handle that Status is polled with.
type VideoSynthesizer interface {
	Submit(ctx context.Context, req VideoRequest) (string, error)
	Status(ctx context.Context, handle string) (VideoStatus, error)
}

// Providers groups the stage capabilities. Speech is nil when the speaking
// stage is disabled.
type Providers struct {
	Text   TextGenerator
	Speech SpeechSynthesizer
	Video  VideoSynthesizer

	TextName   string
	SpeechName string
	VideoName  string
}
