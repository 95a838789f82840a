package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mzurita/fototeca/internal/resolver"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ProcessJob tracks the async face-processing run of one photo.
type ProcessJob struct {
	mu   sync.RWMutex
	view JobView
}

// JobView is the serializable state of a job at one point in time.
type JobView struct {
	ID          string                `json:"id"`
	PhotoID     int64                 `json:"photo_id"`
	Status      JobStatus             `json:"status"`
	Error       string                `json:"error,omitempty"`
	Resolutions []resolver.Resolution `json:"resolutions,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// ID returns the job's identifier.
func (j *ProcessJob) ID() string {
	return j.view.ID
}

// SetRunning marks the job as running.
func (j *ProcessJob) SetRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.view.Status = JobStatusRunning
}

// Complete marks the job as finished with its resolutions.
func (j *ProcessJob) Complete(resolutions []resolver.Resolution) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.view.Status = JobStatusCompleted
	j.view.Resolutions = resolutions
	j.view.CompletedAt = &now
}

// Fail marks the job as failed with the given error.
func (j *ProcessJob) Fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.view.Status = JobStatusFailed
	j.view.Error = err.Error()
	j.view.CompletedAt = &now
}

// Snapshot returns a copy safe to serialize while the job keeps running.
func (j *ProcessJob) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*ProcessJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*ProcessJob),
	}
}

// CreateJob registers a new pending job for a photo.
func (m *JobManager) CreateJob(photoID int64) *ProcessJob {
	job := &ProcessJob{
		view: JobView{
			ID:        uuid.New().String(),
			PhotoID:   photoID,
			Status:    JobStatusPending,
			StartedAt: time.Now(),
		},
	}

	m.mu.Lock()
	m.jobs[job.view.ID] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *ProcessJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}
