// Package job tracks asynchronous operations in memory. A [Registry] owns
// every [Job] for the lifetime of the process, applies status transitions,
// and fans out a snapshot of the job to live subscribers after each change.
//
// Jobs are not persisted; a restart forgets them. Each job is expected to be
// driven by a single writer (the task executing it). Readers only ever see
// copies.
package job

import (
	"maps"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusPending is the initial state of a newly created job.
	StatusPending Status = "pending"
	// StatusRunning means a worker has picked the job up.
	StatusRunning Status = "running"
	// StatusCompleted is terminal: the job succeeded.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: the job failed and Error is set.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// canTransition reports whether the state machine allows from → to.
// Repeating the current non-terminal state is allowed so progress can be
// reported without a status change.
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if from == StatusRunning && to == StatusPending {
		return false
	}
	return to.Valid()
}

// Job is the state of one asynchronous operation. Values returned by the
// Registry are snapshots; mutating them has no effect on the registry.
type Job struct {
	// ID is the opaque identifier assigned at creation.
	ID string `json:"job_id"`
	// Type labels the kind of work (e.g. "index_update").
	Type string `json:"job_type"`
	// Parameters is the request payload, kept for inspection only.
	Parameters map[string]any `json:"-"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Progress is a coarse 0–100 milestone marker.
	Progress int `json:"progress"`
	// CreatedAt is set once at creation.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is set on the first transition into Running.
	StartedAt *time.Time `json:"started_at"`
	// CompletedAt is set on the first transition into a terminal state.
	CompletedAt *time.Time `json:"completed_at"`
	// Result is the success payload. Nil unless the job succeeded.
	Result map[string]any `json:"result"`
	// Error is the failure message. Nil unless the job failed.
	Error *string `json:"error"`
}

// snapshot returns a copy of j that shares no mutable fields with it.
func (j *Job) snapshot() Job {
	c := *j
	c.Parameters = maps.Clone(j.Parameters)
	c.Result = maps.Clone(j.Result)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return c
}

// clampProgress bounds p to the 0–100 range.
func clampProgress(p int) int {
	return min(max(p, 0), 100)
}
