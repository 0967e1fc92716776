package models

import "time"

// BuildStatus is the lifecycle state of the index build job.
type BuildStatus string

const (
	BuildIdle     BuildStatus = "idle"
	BuildIndexing BuildStatus = "indexing"
	BuildReady    BuildStatus = "ready"
	BuildError    BuildStatus = "error"
)

// BuildState is a point-in-time snapshot of the index build job. Readers
// always get a copy; only the active builder advances the live state.
type BuildState struct {
	Status    BuildStatus `json:"status"`
	Progress  float64     `json:"progress"` // 0..1, non-decreasing within one build
	Message   string      `json:"message"`
	LastError string      `json:"last_error,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}
