package usecase

import (
	"errors"
	"fmt"
	"testing"

	"franklin/internal/domain/entity"
)

// TestJobErrorFrom checks the error kind and message chosen per failure.
func TestJobErrorFrom(t *testing.T) {
	cases := []struct {
		name    string
		stage   entity.JobStage
		err     error
		kind    entity.ErrorKind
		message string
	}{
		{
			name:    "text provider",
			stage:   entity.StageThinking,
			err:     &ProviderError{Provider: "openai", Stage: entity.StageThinking, Err: errors.New("401")},
			kind:    entity.ErrorKindProvider,
			message: "Failed to generate AI response",
		},
		{
			name:    "speech provider",
			stage:   entity.StageSpeaking,
			err:     &ProviderError{Provider: "elevenlabs", Stage: entity.StageSpeaking, Err: errors.New("quota")},
			kind:    entity.ErrorKindProvider,
			message: "Failed to generate speech",
		},
		{
			name:    "video failed",
			stage:   entity.StageAnimating,
			err:     &ProviderError{Provider: "d-id", Err: fmt.Errorf("%w: rejected", ErrVideoFailed)},
			kind:    entity.ErrorKindProvider,
			message: "Video generation failed",
		},
		{
			name:    "video timeout",
			stage:   entity.StageAnimating,
			err:     &ProviderError{Provider: "d-id", Err: fmt.Errorf("%w after 30 attempts", ErrVideoTimeout)},
			kind:    entity.ErrorKindTimeout,
			message: "Video generation timed out",
		},
		{
			name:  "store",
			stage: entity.StageSpeaking,
			err:   fmt.Errorf("%w: connection refused", ErrStoreUnavailable),
			kind:  entity.ErrorKindStore,
		},
		{
			name:  "configuration",
			stage: entity.StageThinking,
			err:   &ConfigError{Missing: []string{"DID_API_KEY"}},
			kind:  entity.ErrorKindConfiguration,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			je := jobErrorFrom(tc.stage, tc.err)
			if je.Kind != tc.kind {
				t.Fatalf("kind = %s, want %s", je.Kind, tc.kind)
			}
			if tc.message != "" && je.Message != tc.message {
				t.Fatalf("message = %q, want %q", je.Message, tc.message)
			}
			if je.Details != tc.err.Error() || je.Stage != tc.stage {
				t.Fatalf("unexpected record: %+v", je)
			}
		})
	}
}
