// Package store implements the job registry (C2): the single in-process
// source of truth for jobs, agent groups, and per-file advisory locks.
// Grounded on the pack's gastown crew manager (flock-per-resource,
// lock-then-delegate-to-locked-variant shape) and on google/renameio/v2
// for atomic persistence, the same library quorum-ai (pack) uses in place
// of a hand-rolled temp+rename.
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"kyco/internal/kerrors"
	"kyco/internal/kyco"
)

// Store is the job/group registry for one KYCo workspace.
type Store struct {
	mu sync.Mutex

	nextJobID   atomic.Uint64
	nextGroupID atomic.Uint64

	jobs   map[kyco.JobID]*kyco.Job
	groups map[kyco.GroupID]*kyco.AgentGroup

	// fileLocks maps a normalized workspace-relative path to the ordered,
	// FIFO list of jobs currently holding it, bounded by
	// Settings.MaxJobsPerFile (spec.md §3.2 invariant 4, §4.2 admission).
	// A path with max_jobs_per_file=1 behaves as plain mutual exclusion.
	fileLocks map[string][]kyco.JobID

	persistPath string
	flock       *flock.Flock
}

// New constructs an empty Store persisting to <workspaceDir>/.kyco/jobs.json.
func New(workspaceDir string) *Store {
	persistPath := filepath.Join(workspaceDir, ".kyco", "jobs.json")
	return &Store{
		jobs:        make(map[kyco.JobID]*kyco.Job),
		groups:      make(map[kyco.GroupID]*kyco.AgentGroup),
		fileLocks:   make(map[string][]kyco.JobID),
		persistPath: persistPath,
		flock:       flock.New(persistPath + ".lock"),
	}
}

// CreateJob allocates an id, stores j, and returns the stored copy's id.
func (s *Store) CreateJob(j *kyco.Job) kyco.JobID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := kyco.JobID(s.nextJobID.Add(1))
	j.ID = id
	if j.Status == "" {
		j.Status = kyco.StatusPending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	s.jobs[id] = j
	return id
}

// CreateGroup allocates an id for a new AgentGroup.
func (s *Store) CreateGroup(g *kyco.AgentGroup) kyco.GroupID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := kyco.GroupID(s.nextGroupID.Add(1))
	g.ID = id
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	s.groups[id] = g
	return id
}

// Get returns a clone of the job with the given id.
func (s *Store) Get(id kyco.JobID) (kyco.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return kyco.Job{}, fmt.Errorf("job %d: %w", id, kerrors.ErrNotFound)
	}
	return j.Clone(), nil
}

// GetGroup returns a copy of the group with the given id.
func (s *Store) GetGroup(id kyco.GroupID) (kyco.AgentGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return kyco.AgentGroup{}, fmt.Errorf("group %d: %w", id, kerrors.ErrNotFound)
	}
	return *g, nil
}

// MutateGroup runs fn against the live group under lock and returns the
// post-mutation copy, mirroring Mutate's read-modify-write contract for
// jobs.
func (s *Store) MutateGroup(id kyco.GroupID, fn func(g *kyco.AgentGroup) error) (kyco.AgentGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return kyco.AgentGroup{}, fmt.Errorf("group %d: %w", id, kerrors.ErrNotFound)
	}
	if err := fn(g); err != nil {
		return *g, err
	}
	return *g, nil
}

// List returns a snapshot of all jobs, most-recently-created first.
func (s *Store) List() []kyco.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]kyco.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	// Ids are allocated in creation order, so descending id is newest first.
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out
}

// ListByGroup returns all jobs belonging to groupID.
func (s *Store) ListByGroup(groupID kyco.GroupID) []kyco.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]kyco.Job, 0)
	for _, j := range s.jobs {
		if j.GroupID == groupID {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Mutate runs fn against the live job under lock, allowing a caller (the
// executor) to perform a read-modify-write transition atomically. fn must
// not retain the pointer past the call.
func (s *Store) Mutate(id kyco.JobID, fn func(j *kyco.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %d: %w", id, kerrors.ErrNotFound)
	}
	return fn(j)
}

// SetStatus transitions a job's status. The only transition it rejects
// (ErrIllegalTransition) is one out of a terminal status; any other
// from/to pair is accepted without checking the state machine's edges.
func (s *Store) SetStatus(id kyco.JobID, status kyco.Status) error {
	return s.Mutate(id, func(j *kyco.Job) error {
		if j.Status.Terminal() {
			return fmt.Errorf("job %d already %s: %w", id, j.Status, kerrors.ErrIllegalTransition)
		}
		j.Status = status
		now := time.Now()
		switch status {
		case kyco.StatusRunning:
			j.StartedAt = &now
		case kyco.StatusDone, kyco.StatusFailed, kyco.StatusRejected, kyco.StatusMerged:
			j.FinishedAt = &now
		}
		return nil
	})
}

// AcquireFileLock grants job id a slot in path's holder list, up to
// maxHolders concurrent holders (Settings.MaxJobsPerFile), FIFO-ordered.
// When the list is already full, it reports the oldest current holder so
// the caller can record what id is blocked behind. maxHolders<=0 is
// treated as 1, preserving plain mutual exclusion as the default.
func (s *Store) AcquireFileLock(path string, id kyco.JobID, maxHolders int) (holder kyco.JobID, acquired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxHolders <= 0 {
		maxHolders = 1
	}

	path = normalizePath(path)
	holders := s.fileLocks[path]
	for _, h := range holders {
		if h == id {
			return id, true
		}
	}
	if len(holders) >= maxHolders {
		return holders[0], false
	}
	s.fileLocks[path] = append(holders, id)
	return id, true
}

// ReleaseJobLocks frees every lock held by id.
func (s *Store) ReleaseJobLocks(id kyco.JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked(id)
}

// releaseLocked removes id from every path's holder list. Callers must
// already hold s.mu.
func (s *Store) releaseLocked(id kyco.JobID) {
	for path, holders := range s.fileLocks {
		kept := holders[:0]
		for _, h := range holders {
			if h != id {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(s.fileLocks, path)
		} else {
			s.fileLocks[path] = kept
		}
	}
}

// Touch reports ErrNotFound for an unknown id and otherwise changes
// nothing: no timestamp or counter is updated.
func (s *Store) Touch(id kyco.JobID) error {
	return s.Mutate(id, func(j *kyco.Job) error { return nil })
}

// Remove deletes a job from the registry (spec.md §4.9 delete operation).
func (s *Store) Remove(id kyco.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job %d: %w", id, kerrors.ErrNotFound)
	}
	delete(s.jobs, id)
	s.releaseLocked(id)
	return nil
}

// persisted is the on-disk shape of jobs.json.
type persisted struct {
	Jobs   []*kyco.Job        `json:"jobs"`
	Groups []*kyco.AgentGroup `json:"groups"`
}

// Save writes the registry to disk atomically (renameio temp+rename),
// serialized against other writers in this process tree via flock,
// mirroring the pack's crew manager lockCrew/saveState pairing.
func (s *Store) Save() error {
	if err := s.flock.Lock(); err != nil {
		return fmt.Errorf("store: lock %s: %w", s.persistPath, err)
	}
	defer s.flock.Unlock()

	s.mu.Lock()
	snap := persisted{
		Jobs:   make([]*kyco.Job, 0, len(s.jobs)),
		Groups: make([]*kyco.AgentGroup, 0, len(s.groups)),
	}
	for _, j := range s.jobs {
		c := j.Clone()
		snap.Jobs = append(snap.Jobs, &c)
	}
	for _, g := range s.groups {
		gc := *g
		snap.Groups = append(snap.Groups, &gc)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	if err := renameio.WriteFile(s.persistPath, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", s.persistPath, err)
	}
	return nil
}

// Load restores the registry from disk, if present. A missing file is not
// an error: a fresh workspace starts empty.
func Load(workspaceDir string) (*Store, error) {
	s := New(workspaceDir)

	if err := s.flock.Lock(); err != nil {
		return nil, fmt.Errorf("store: lock %s: %w", s.persistPath, err)
	}
	defer s.flock.Unlock()

	data, err := readFileTolerant(s.persistPath)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return s, nil
	}

	var snap persisted
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: unmarshal %s: %w", s.persistPath, err)
	}

	var maxJobID kyco.JobID
	var maxGroupID kyco.GroupID
	for _, j := range snap.Jobs {
		s.jobs[j.ID] = j
		if j.ID > maxJobID {
			maxJobID = j.ID
		}
	}
	for _, g := range snap.Groups {
		s.groups[g.ID] = g
		if g.ID > maxGroupID {
			maxGroupID = g.ID
		}
	}
	s.nextJobID.Store(uint64(maxJobID))
	s.nextGroupID.Store(uint64(maxGroupID))
	return s, nil
}

func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
