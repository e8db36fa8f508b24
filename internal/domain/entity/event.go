package entity

import "time"

// ProgressEvent is pushed to observers after every state write.
type ProgressEvent struct {
	JobID     string    `json:"jobId"`
	Stage     JobStage  `json:"stage"`
	Message   string    `json:"message,omitempty"`
	Progress  int       `json:"progress"`
	Status    JobStatus `json:"status"`
	Error     *JobError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFor snapshots the observable fields of j.
func EventFor(j *Job, now time.Time) ProgressEvent {
	e := ProgressEvent{
		JobID:     j.ID,
		Stage:     j.Stage,
		Message:   j.Message,
		Progress:  j.Progress,
		Status:    j.Status,
		Timestamp: now,
	}
	if j.Error != nil {
		cp := *j.Error
		e.Error = &cp
	}
	return e
}

// JobCreatedMessage is the broker payload handing a submitted job to a worker.
type JobCreatedMessage struct {
	JobID    string    `json:"job_id"`
	Question string    `json:"question"`
	QueuedAt time.Time `json:"queued_at"`
}
