package entity

import (
	"errors"
	"time"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobTerminal = errors.New("job already terminal")
)

type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions may happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type JobStage string

const (
	StageThinking  JobStage = "thinking"
	StageSpeaking  JobStage = "speaking"
	StageAnimating JobStage = "animating"
	StageCompleted JobStage = "completed"
)

type ErrorKind string

const (
	ErrorKindInput         ErrorKind = "input"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindStore         ErrorKind = "store"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindDispatch      ErrorKind = "dispatch"
)

type JobResult struct {
	Answer   string `json:"answer"`
	AudioURL string `json:"audioUrl,omitempty"`
	VideoURL string `json:"videoUrl"`
}

type JobError struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Stage    JobStage  `json:"stage,omitempty"`
}

type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Stage       JobStage   `json:"stage"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer,omitempty"`
	Result      *JobResult `json:"result"`
	Error       *JobError  `json:"error"`
	StartTime   time.Time  `json:"startTime"`
	LastUpdated time.Time  `json:"lastUpdated"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// NewJob returns the initial record written at submission.
func NewJob(id, question string, now time.Time) *Job {
	return &Job{
		ID:          id,
		Status:      StatusProcessing,
		Stage:       StageThinking,
		Progress:    0,
		Question:    question,
		StartTime:   now,
		LastUpdated: now,
	}
}

// JobPatch is a shallow partial update. Nil fields are left untouched.
type JobPatch struct {
	Status   *JobStatus
	Stage    *JobStage
	Progress *int
	Message  *string
	Answer   *string
	Result   *JobResult
	Error    *JobError
	EndTime  *time.Time
}

// Apply merges p into j and refreshes LastUpdated. Progress never moves
// backwards and a terminal job rejects every patch.
func (j *Job) Apply(p JobPatch, now time.Time) error {
	if j.Status.Terminal() {
		return ErrJobTerminal
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Stage != nil {
		j.Stage = *p.Stage
	}
	if p.Progress != nil && *p.Progress > j.Progress {
		j.Progress = clampProgress(*p.Progress)
	}
	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.Answer != nil {
		j.Answer = *p.Answer
	}
	if p.Result != nil {
		r := *p.Result
		j.Result = &r
	}
	if p.Error != nil {
		e := *p.Error
		j.Error = &e
	}
	if p.EndTime != nil && j.EndTime == nil {
		t := *p.EndTime
		j.EndTime = &t
	}
	if now.After(j.LastUpdated) {
		j.LastUpdated = now
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	return &c
}

// Expired reports whether a terminal job has outlived the retention window.
func (j *Job) Expired(retention time.Duration, now time.Time) bool {
	if retention <= 0 || !j.Status.Terminal() || j.EndTime == nil {
		return false
	}
	return now.Sub(*j.EndTime) >= retention
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }
