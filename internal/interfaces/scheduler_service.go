package interfaces

import "time"

// JobStatus reports the state of a registered maintenance job
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Enabled   bool       `json:"enabled"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerService runs periodic maintenance jobs (session GC)
type SchedulerService interface {
	RegisterJob(name string, schedule string, handler func() error) error
	Start() error
	Stop() error
	TriggerJob(name string) error
	IsRunning() bool
	GetAllJobStatuses() map[string]*JobStatus
}
