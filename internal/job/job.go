// Package job provides the Job aggregate that tracks a media or text task
// from submission to completion, the repository port that stores jobs, and
// the service that runs them.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/mediadesk/internal/job/id"
)

// Kind names the operation a job performs.
type Kind string

const (
	// KindCombine joins audio clips into one MP3.
	KindCombine Kind = "combine"
	// KindChunk splits text into bounded chunks.
	KindChunk Kind = "chunk"
	// KindDownload fetches the audio track of an online video.
	KindDownload Kind = "download"
	// KindGIF converts a video into an animated GIF.
	KindGIF Kind = "gif"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindCombine, KindChunk, KindDownload, KindGIF:
		return true
	}
	return false
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted but has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is a single submitted task.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Kind is the operation the job performs.
	Kind Kind
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress int
	// Stage is the last reported processing stage.
	Stage string
	// Message is the last human readable progress note.
	Message string
	// Outputs are the local paths of the files the job produced.
	Outputs []string
	// URLs are the published copies of Outputs, when Publish is set.
	URLs []string
	// Chunks holds the text chunks of a chunk job.
	Chunks []string
	// Error contains the error message if the job failed.
	Error string
	// ErrorKind is the category of the failure.
	ErrorKind string
	// Publish indicates whether outputs are uploaded on success.
	Publish bool
	// TempPaths are scratch files removed once the job ends.
	TempPaths []string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a new Job of the given kind with an ID prefixed by the kind.
func New(kind Kind) *Job {
	return NewWithID(id.WithPrefix(string(kind)), kind)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string, kind Kind) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Kind:      kind,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the outputs and transitions the job to COMPLETED.
func (j *Job) Complete(outputs, urls, chunks []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Outputs = append([]string(nil), outputs...)
	j.URLs = append([]string(nil), urls...)
	j.Chunks = append([]string(nil), chunks...)
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with an error category and message.
func (j *Job) Fail(kind, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.Error = errMsg
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress records a progress report. A negative progress keeps the
// previous percentage. It reports whether anything visible changed.
func (j *Job) UpdateProgress(stage, message string, progress int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = j.Progress
	}
	if stage == j.Stage && message == j.Message && progress == j.Progress {
		return false
	}

	j.Stage = stage
	j.Message = message
	j.Progress = progress
	j.UpdatedAt = time.Now()
	return true
}

// AddTempPaths registers scratch files to remove when the job ends.
func (j *Job) AddTempPaths(paths ...string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.TempPaths = append(j.TempPaths, paths...)
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Kind:        j.Kind,
		Status:      j.Status,
		Progress:    j.Progress,
		Stage:       j.Stage,
		Message:     j.Message,
		Outputs:     append([]string(nil), j.Outputs...),
		URLs:        append([]string(nil), j.URLs...),
		Chunks:      append([]string(nil), j.Chunks...),
		Error:       j.Error,
		ErrorKind:   j.ErrorKind,
		Publish:     j.Publish,
		TempPaths:   append([]string(nil), j.TempPaths...),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
