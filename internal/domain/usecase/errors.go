package usecase

import (
	"errors"
	"fmt"

	"franklin/internal/domain/entity"
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrVideoFailed   = errors.New("video generation failed")
	ErrVideoTimeout  = errors.New("video generation timed out")

	ErrStoreUnavailable = errors.New("job store unavailable")
	// ErrJobNotLoaded means Run gave up before any stage started.
	ErrJobNotLoaded = errors.New("could not load job")
)

type ProviderError struct {
	Provider string
	Stage    entity.JobStage
	Err      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider configuration incomplete, missing: %v", e.Missing)
}

// jobErrorFrom maps a stage failure onto the persisted error record.
func jobErrorFrom(stage entity.JobStage, err error) *entity.JobError {
	je := &entity.JobError{
		Kind:    entity.ErrorKindProvider,
		Message: stageFailureMessage(stage),
		Details: err.Error(),
		Stage:   stage,
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		je.Provider = pe.Provider
	}

	var ce *ConfigError
	switch {
	case errors.Is(err, ErrVideoTimeout):
		je.Kind = entity.ErrorKindTimeout
		je.Message = "Video generation timed out"
	case errors.Is(err, ErrVideoFailed):
		je.Message = "Video generation failed"
	case errors.Is(err, ErrStoreUnavailable):
		je.Kind = entity.ErrorKindStore
		je.Message = "Job state could not be saved"
	case errors.As(err, &ce):
		je.Kind = entity.ErrorKindConfiguration
		je.Message = "Service is not configured to answer questions"
	}
	return je
}

func stageFailureMessage(stage entity.JobStage) string {
	switch stage {
	case entity.StageThinking:
		return "Failed to generate AI response"
	case entity.StageSpeaking:
		return "Failed to generate speech"
	case entity.StageAnimating:
		return "Failed to generate video"
	default:
		return "Failed to process your question"
	}
}
