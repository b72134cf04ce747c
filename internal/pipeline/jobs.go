package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/protoseg/internal/protocol"
)

// JobStatus represents the state of a segmentation job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusParsing     JobStatus = "parsing"
	StatusClassifying JobStatus = "classifying"
	StatusSegmenting  JobStatus = "segmenting"
	StatusStoring     JobStatus = "storing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusDupSkipped  JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single protocol segmentation.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`

	// Force disables the duplicate-content check.
	Force bool `json:"force"`
	// Metadata is copied onto the stored protocol document.
	Metadata map[string]string `json:"metadata,omitempty"`

	Progress Progress `json:"progress"`

	ContentHash   string    `json:"content_hash,omitempty"`
	ExistingDocID string    `json:"existing_doc_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	result   *protocol.Document
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalPages      int      `json:"total_pages"`
	TOCPages        []int    `json:"toc_pages"`
	SectionsTotal   int      `json:"sections_total"`
	SectionsMatched int      `json:"sections_matched"`
	Errors          []string `json:"errors"`
}

// NewJob returns a queued job for filename with fresh job and document IDs.
func NewJob(filename string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		DocID:     uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetPages records the page count and detected TOC pages.
func (j *Job) SetPages(total int, toc []int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalPages = total
	j.Progress.TOCPages = toc
	j.UpdatedAt = time.Now()
}

// SetSections records how many template sections were found.
func (j *Job) SetSections(matched, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.SectionsMatched = matched
	j.Progress.SectionsTotal = total
	j.UpdatedAt = time.Now()
}

// SetContentHash records the parsed-text hash.
func (j *Job) SetContentHash(hash string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = hash
}

// SetExistingDocID records the stored document this job duplicates.
func (j *Job) SetExistingDocID(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ExistingDocID = id
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

func (j *Job) setResult(doc *protocol.Document) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = doc
	j.fileData = nil
}

// Result returns the segmented document once the job has produced one.
func (j *Job) Result() *protocol.Document {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID            string    `json:"job_id"`
	DocID         string    `json:"doc_id"`
	Status        JobStatus `json:"status"`
	Phase         string    `json:"phase"`
	Filename      string    `json:"filename"`
	ContentHash   string    `json:"content_hash,omitempty"`
	ExistingDocID string    `json:"existing_doc_id,omitempty"`
	Progress      Progress  `json:"progress"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	toc := append([]int{}, j.Progress.TOCPages...)
	return JobSnapshot{
		ID:            j.ID,
		DocID:         j.DocID,
		Status:        j.Status,
		Phase:         j.Phase,
		Filename:      j.Filename,
		ContentHash:   j.ContentHash,
		ExistingDocID: j.ExistingDocID,
		Progress: Progress{
			TotalPages:      j.Progress.TotalPages,
			TOCPages:        toc,
			SectionsTotal:   j.Progress.SectionsTotal,
			SectionsMatched: j.Progress.SectionsMatched,
			Errors:          errs,
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
