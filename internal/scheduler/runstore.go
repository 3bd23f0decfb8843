package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"navLedger/internal/model"
	"navLedger/internal/storage"
)

// RunStore persists the metadata of finished job runs.
type RunStore interface {
	Save(ctx context.Context, run model.JobRun) error
	Last(ctx context.Context, job string) (model.JobRun, bool, error)
}

// FileRunStore keeps the last run of each job in a local JSON file.
type FileRunStore struct {
	Path string
	mu   sync.Mutex
}

type runFile struct {
	Runs map[string]model.JobRun `json:"runs"`
}

func (s *FileRunStore) Last(ctx context.Context, job string) (model.JobRun, bool, error) {
	if s == nil || s.Path == "" {
		return model.JobRun{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read()
	if err != nil {
		return model.JobRun{}, false, err
	}
	run, ok := rec.Runs[job]
	return run, ok, nil
}

func (s *FileRunStore) Save(ctx context.Context, run model.JobRun) error {
	if s == nil || s.Path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return err
	}
	rec.Runs[run.Job] = run

	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create run state dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename run state: %w", err)
	}
	return nil
}

func (s *FileRunStore) read() (runFile, error) {
	rec := runFile{Runs: make(map[string]model.JobRun)}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, nil
		}
		return rec, fmt.Errorf("read run state: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse run state: %w", err)
	}
	if rec.Runs == nil {
		rec.Runs = make(map[string]model.JobRun)
	}
	return rec, nil
}

// DBRunStore stores runs in the ledger's job_runs table.
type DBRunStore struct {
	Store storage.JobRunStore
}

func (s *DBRunStore) Save(ctx context.Context, run model.JobRun) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveJobRun(ctx, run)
}

func (s *DBRunStore) Last(ctx context.Context, job string) (model.JobRun, bool, error) {
	if s == nil || s.Store == nil {
		return model.JobRun{}, false, nil
	}
	return s.Store.LastJobRun(ctx, job)
}
