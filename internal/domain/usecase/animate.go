package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"franklin/internal/domain/entity"
)

// animate submits the video job and polls it on a fixed interval until it is
// done, failed, or the attempt budget runs out.
func (o *Orchestrator) animate(ctx context.Context, jobID string, req VideoRequest) (string, error) {
	if err := o.advance(ctx, jobID, entity.StageAnimating, "Animating Benjamin Franklin", progressAnimating); err != nil {
		return "", err
	}

	provider := o.providers.VideoName
	handle, err := o.providers.Video.Submit(ctx, req)
	if err != nil {
		return "", &ProviderError{Provider: provider, Stage: entity.StageAnimating, Err: err}
	}
	o.logger.Printf("[JOB %s] video render %s submitted to %s", jobID, handle, provider)

	maxAttempts := o.opts.MaxPollAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := o.providers.Video.Status(ctx, handle)
		if err != nil {
			return "", &ProviderError{Provider: provider, Stage: entity.StageAnimating, Err: err}
		}

		switch status.State {
		case VideoDone:
			if status.ResultURL == "" {
				return "", &ProviderError{Provider: provider, Stage: entity.StageAnimating, Err: errors.New("render finished without a result url")}
			}
			return status.ResultURL, nil
		case VideoFailed:
			reason := status.Reason
			if reason == "" {
				reason = "provider reported failure"
			}
			return "", &ProviderError{Provider: provider, Stage: entity.StageAnimating, Err: fmt.Errorf("%w: %s", ErrVideoFailed, reason)}
		}

		if err := o.advance(ctx, jobID, entity.StageAnimating, "Animating Benjamin Franklin", renderProgress(attempt, maxAttempts)); err != nil {
			return "", err
		}
		if err := o.sleep(ctx, o.opts.PollInterval); err != nil {
			return "", fmt.Errorf("wait for render %s: %w", handle, err)
		}
	}

	budget := o.opts.PollInterval * time.Duration(maxAttempts)
	return "", &ProviderError{
		Provider: provider,
		Stage:    entity.StageAnimating,
		Err:      fmt.Errorf("%w after %d attempts (%s)", ErrVideoTimeout, maxAttempts, budget),
	}
}

// renderProgress spreads poll attempts over (progressAnimating, progressRendered].
func renderProgress(attempt, maxAttempts int) int {
	span := progressRendered - progressAnimating
	return progressAnimating + attempt*span/maxAttempts
}
