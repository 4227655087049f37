// Package runstore keeps a bounded, in-memory history of orchestrated runs.
package runstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
)

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a run record.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Record describes one run.
type Record struct {
	ID         string                     `json:"id"`
	Status     Status                     `json:"status"`
	Mode       orchestrator.Mode          `json:"mode"`
	Profile    orchestrator.CallerProfile `json:"profile"`
	Prompt     string                     `json:"prompt,omitempty"`
	Workers    []string                   `json:"workers,omitempty"`
	Results    map[string]agent.Result    `json:"results,omitempty"`
	Error      string                     `json:"error,omitempty"`
	StartedAt  time.Time                  `json:"startedAt"`
	FinishedAt *time.Time                 `json:"finishedAt,omitempty"`
}

// NewID returns a fresh run ID.
func NewID() string {
	return uuid.NewString()
}

// Store is a concurrency-safe in-memory store of run records. Records are
// kept in insertion order; once capacity is reached the oldest record is
// evicted.
type Store struct {
	mu       sync.RWMutex
	capacity int
	runs     map[string]*Record
	orderIDs []string
}

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 100

// New returns a Store that keeps at most capacity records.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		runs:     make(map[string]*Record),
	}
}

// Create stores a new record. It returns an error if the ID already exists.
func (s *Store) Create(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return errors.New("run record has no ID")
	}
	if _, exists := s.runs[rec.ID]; exists {
		return fmt.Errorf("run %q already exists", rec.ID)
	}
	s.runs[rec.ID] = copyRecord(&rec)
	s.orderIDs = append(s.orderIDs, rec.ID)

	for len(s.orderIDs) > s.capacity {
		delete(s.runs, s.orderIDs[0])
		s.orderIDs = s.orderIDs[1:]
	}
	return nil
}

// Finish marks a run as finished with the given results and error text.
func (s *Store) Finish(id string, status Status, results map[string]agent.Result, errText string) error {
	return s.Update(id, func(r *Record) {
		now := time.Now().UTC()
		r.Status = status
		r.Results = copyResults(results)
		r.Error = errText
		r.FinishedAt = &now
	})
}

// Update applies fn to the stored record under the write lock.
func (s *Store) Update(id string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	fn(r)
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return copyRecord(r), nil
}

// ListRequest filters and paginates List.
type ListRequest struct {
	Status Status
	Role   orchestrator.Role

	// PageToken is the ID of the last record of the previous page.
	PageToken string
	// PageSize <= 0 returns every match.
	PageSize int
}

// ListResponse is one page of records.
type ListResponse struct {
	Runs          []Record `json:"runs"`
	TotalSize     int      `json:"totalSize"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

// List returns records matching req in insertion order.
func (s *Store) List(req ListRequest) (*ListResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startIdx := 0
	if req.PageToken != "" {
		found := false
		for i, id := range s.orderIDs {
			if id == req.PageToken {
				startIdx = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("invalid page token %q", req.PageToken)
		}
	}

	totalBefore := 0
	for i := 0; i < startIdx; i++ {
		if matches(s.runs[s.orderIDs[i]], req) {
			totalBefore++
		}
	}

	matched := []Record{}
	for i := startIdx; i < len(s.orderIDs); i++ {
		r := s.runs[s.orderIDs[i]]
		if matches(r, req) {
			matched = append(matched, *copyRecord(r))
		}
	}

	total := totalBefore + len(matched)
	var next string
	if req.PageSize > 0 && len(matched) > req.PageSize {
		next = matched[req.PageSize-1].ID
		matched = matched[:req.PageSize]
	}

	return &ListResponse{Runs: matched, TotalSize: total, NextPageToken: next}, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orderIDs)
}

func matches(r *Record, req ListRequest) bool {
	if req.Status != "" && r.Status != req.Status {
		return false
	}
	if req.Role != "" && r.Profile.Role != req.Role {
		return false
	}
	return true
}

// copyRecord copies the record's slices and maps. Result payloads are shared;
// they are not mutated after a run finishes.
func copyRecord(src *Record) *Record {
	dst := *src
	if src.Workers != nil {
		dst.Workers = append([]string(nil), src.Workers...)
	}
	dst.Results = copyResults(src.Results)
	if src.Profile.Level != nil {
		level := *src.Profile.Level
		dst.Profile.Level = &level
	}
	if src.FinishedAt != nil {
		t := *src.FinishedAt
		dst.FinishedAt = &t
	}
	return &dst
}

func copyResults(src map[string]agent.Result) map[string]agent.Result {
	if src == nil {
		return nil
	}
	dst := make(map[string]agent.Result, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
