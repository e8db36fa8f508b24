package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"franklin/internal/domain/entity"
)

// Progress checkpoints written at each stage transition.
const (
	progressThinking  = 10
	progressAnswered  = 25
	progressSpeaking  = 40
	progressSpoken    = 55
	progressAnimating = 65
	progressRendered  = 95
	progressCompleted = 100
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollAttempts = 30
)

type Options struct {
	// SourceImageURL is the portrait the video provider animates.
	SourceImageURL  string
	PollInterval    time.Duration
	MaxPollAttempts int
	// Retention is how long terminal jobs are kept. Zero keeps them forever.
	Retention time.Duration
	// ConfigErr, when set, makes every submission fail fast.
	ConfigErr error
}

// Orchestrator drives a job through thinking, speaking, animating and
// completed, writing the store and notifying observers after every step.
type Orchestrator struct {
	store      JobStore
	notifier   Notifier
	providers  Providers
	opts       Options
	dispatcher Dispatcher
	reaper     *Reaper
	logger     *log.Logger

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(store JobStore, notifier Notifier, providers Providers, opts Options, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = DefaultMaxPollAttempts
	}

	o := &Orchestrator{
		store:     store,
		notifier:  notifier,
		providers: providers,
		opts:      opts,
		reaper:    NewReaper(store, opts.Retention, logger),
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		sleep:     sleepCtx,
	}
	o.dispatcher = NewInProcessDispatcher(context.Background(), o, logger)
	return o
}

func (o *Orchestrator) SetDispatcher(d Dispatcher) {
	o.dispatcher = d
}

func (o *Orchestrator) Reaper() *Reaper {
	return o.reaper
}

// Submit validates the question, writes the initial record and hands the job
// off for background execution. It never waits on a provider.
func (o *Orchestrator) Submit(ctx context.Context, question string) (*entity.Job, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	now := o.now()
	job := entity.NewJob(o.newID(), question, now)

	if o.opts.ConfigErr != nil {
		job.Status = entity.StatusFailed
		job.Error = jobErrorFrom(entity.StageThinking, o.opts.ConfigErr)
		job.Message = job.Error.Message
		job.EndTime = &now
		if err := o.store.Put(ctx, job); err != nil {
			return nil, fmt.Errorf("store job %s: %w", job.ID, err)
		}
		o.logger.Printf("[JOB %s] rejected at submission: %v", job.ID, o.opts.ConfigErr)
		o.notifier.Publish(ctx, entity.EventFor(job, now))
		o.reaper.Schedule(job.ID)
		return job, nil
	}

	job.Message = "Your question is being processed"
	if err := o.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("store job %s: %w", job.ID, err)
	}
	o.logger.Printf("[JOB %s] submitted", job.ID)
	o.notifier.Publish(ctx, entity.EventFor(job, now))

	if err := o.dispatcher.Dispatch(ctx, job.Clone()); err != nil {
		o.logger.Printf("[JOB %s] ERROR: dispatch: %v", job.ID, err)
		o.writeFailure(ctx, job.ID, &entity.JobError{
			Kind:    entity.ErrorKindDispatch,
			Message: "Failed to queue your question",
			Details: err.Error(),
			Stage:   entity.StageThinking,
		})
		return nil, fmt.Errorf("dispatch job %s: %w", job.ID, err)
	}
	return job, nil
}

// Run executes the stage sequence for jobID. A job that is already terminal
// is left alone. Stage failures are recorded on the job, and the returned
// error is only informational for the caller's logs.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if errors.Is(err, entity.ErrJobNotFound) {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrJobNotLoaded, jobID, err)
	}
	if job.Status.Terminal() {
		o.logger.Printf("[JOB %s] already %s, skipping", jobID, job.Status)
		return nil
	}
	started := o.now()

	answer, err := o.think(ctx, job)
	if err != nil {
		return o.fail(ctx, jobID, entity.StageThinking, err)
	}

	var audioURL string
	if o.providers.Speech != nil {
		audioURL, err = o.speak(ctx, jobID, answer)
		if err != nil {
			return o.fail(ctx, jobID, entity.StageSpeaking, err)
		}
	}

	req := VideoRequest{AudioURL: audioURL, SourceImageURL: o.opts.SourceImageURL}
	if audioURL == "" {
		req.Text = answer
	}
	videoURL, err := o.animate(ctx, jobID, req)
	if err != nil {
		return o.fail(ctx, jobID, entity.StageAnimating, err)
	}

	now := o.now()
	if _, err := o.merge(ctx, jobID, entity.JobPatch{
		Status:   entity.Ptr(entity.StatusCompleted),
		Stage:    entity.Ptr(entity.StageCompleted),
		Progress: entity.Ptr(progressCompleted),
		Message:  entity.Ptr("Franklin has answered"),
		Result:   &entity.JobResult{Answer: answer, AudioURL: audioURL, VideoURL: videoURL},
		EndTime:  &now,
	}); err != nil {
		return o.fail(ctx, jobID, entity.StageAnimating, err)
	}
	o.reaper.Schedule(jobID)
	o.logger.Printf("[JOB %s] completed in %s", jobID, now.Sub(started).Round(time.Millisecond))
	return nil
}

func (o *Orchestrator) think(ctx context.Context, job *entity.Job) (string, error) {
	if err := o.advance(ctx, job.ID, entity.StageThinking, "Generating Franklin's response", progressThinking); err != nil {
		return "", err
	}

	answer, err := o.providers.Text.Generate(ctx, job.Question)
	if err != nil {
		return "", &ProviderError{Provider: o.providers.TextName, Stage: entity.StageThinking, Err: err}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", &ProviderError{Provider: o.providers.TextName, Stage: entity.StageThinking, Err: errors.New("empty response")}
	}

	if _, err := o.merge(ctx, job.ID, entity.JobPatch{
		Answer:   &answer,
		Progress: entity.Ptr(progressAnswered),
		Message:  entity.Ptr("Franklin has composed his answer"),
	}); err != nil {
		return "", err
	}
	return answer, nil
}

func (o *Orchestrator) speak(ctx context.Context, jobID, answer string) (string, error) {
	if err := o.advance(ctx, jobID, entity.StageSpeaking, "Converting text to speech", progressSpeaking); err != nil {
		return "", err
	}

	audioURL, err := o.providers.Speech.Synthesize(ctx, jobID, answer)
	if err != nil {
		return "", &ProviderError{Provider: o.providers.SpeechName, Stage: entity.StageSpeaking, Err: err}
	}
	if audioURL == "" {
		return "", &ProviderError{Provider: o.providers.SpeechName, Stage: entity.StageSpeaking, Err: errors.New("no audio url returned")}
	}

	if err := o.advance(ctx, jobID, entity.StageSpeaking, "Franklin's voice is ready", progressSpoken); err != nil {
		return "", err
	}
	return audioURL, nil
}

// advance moves the job to stage with a message and progress value.
func (o *Orchestrator) advance(ctx context.Context, jobID string, stage entity.JobStage, message string, progress int) error {
	_, err := o.merge(ctx, jobID, entity.JobPatch{
		Stage:    &stage,
		Message:  &message,
		Progress: &progress,
	})
	if err == nil {
		o.logger.Printf("[JOB %s] %s - %s (%d%%)", jobID, stage, message, progress)
	}
	return err
}

// merge writes patch and publishes the resulting state.
func (o *Orchestrator) merge(ctx context.Context, jobID string, patch entity.JobPatch) (*entity.Job, error) {
	updated, err := o.store.Merge(ctx, jobID, patch)
	if err != nil {
		if errors.Is(err, entity.ErrJobNotFound) || errors.Is(err, entity.ErrJobTerminal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	o.notifier.Publish(ctx, entity.EventFor(updated, o.now()))
	return updated, nil
}

// fail records err on the job and stops the sequence.
func (o *Orchestrator) fail(ctx context.Context, jobID string, stage entity.JobStage, err error) error {
	je := jobErrorFrom(stage, err)
	o.logger.Printf("[JOB %s] ERROR: stage=%s provider=%s kind=%s: %v", jobID, stage, je.Provider, je.Kind, err)
	o.writeFailure(ctx, jobID, je)
	return err
}

func (o *Orchestrator) writeFailure(ctx context.Context, jobID string, je *entity.JobError) {
	now := o.now()
	status := entity.StatusFailed
	if _, err := o.merge(ctx, jobID, entity.JobPatch{
		Status:  &status,
		Message: &je.Message,
		Error:   je,
		EndTime: &now,
	}); err != nil {
		o.logger.Printf("[JOB %s] ERROR: could not record failure: %v", jobID, err)
		return
	}
	o.reaper.Schedule(jobID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, entity.ProgressEvent) {}
