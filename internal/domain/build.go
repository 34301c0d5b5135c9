package domain

import "time"

// BuildStatus is the outcome of one rebuild.
type BuildStatus string

const (
	BuildStatusRunning BuildStatus = "running"
	BuildStatusSuccess BuildStatus = "success"
	BuildStatusEmpty   BuildStatus = "empty"
	BuildStatusError   BuildStatus = "error"
)

// BuildTrigger records what started a rebuild.
type BuildTrigger string

const (
	BuildTriggerManual   BuildTrigger = "manual"
	BuildTriggerSchedule BuildTrigger = "schedule"
	BuildTriggerWatch    BuildTrigger = "file_watch"
)

// BuildRun is one entry of the build history.
type BuildRun struct {
	ID         string       `json:"id"`
	Trigger    BuildTrigger `json:"trigger"`
	Source     string       `json:"source"`
	Status     BuildStatus  `json:"status"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Records    int          `json:"records"`
	Rows       int          `json:"rows"`
	Columns    int          `json:"columns"`
	Artifacts  []string     `json:"artifacts"`
	Error      string       `json:"error"`
}

// BuildRunStore persists the build history.
type BuildRunStore interface {
	CreateRun(r *BuildRun) error
	GetRun(id string) (*BuildRun, error)
	ListRuns(limit int) ([]BuildRun, error)
}
