// Package state records the last started run on disk so that a later
// process can stop it.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// ErrNoRun is returned by Load when no run has been recorded.
var ErrNoRun = errors.New("no run recorded")

// Run is the persisted description of a started run.
type Run struct {
	BaseURL       string    `yaml:"base_url"`
	TenantID      string    `yaml:"tenant_id"`
	ProjectID     string    `yaml:"project_id"`
	LoadTestID    string    `yaml:"load_test_id"`
	RunID         int64     `yaml:"run_id"`
	CorrelationID string    `yaml:"correlation_id,omitempty"`
	StartedAt     time.Time `yaml:"started_at"`
}

// Store reads and writes one run file guarded by a sibling lock file.
type Store struct {
	path    string
	lock    *flock.Flock
	timeout time.Duration
}

// NewStore returns a Store for path. The lock file is path + ".lock".
func NewStore(path string) *Store {
	return &Store{
		path:    path,
		lock:    flock.New(path + ".lock"),
		timeout: 5 * time.Second,
	}
}

// Path returns the run file location.
func (s *Store) Path() string { return s.path }

func (s *Store) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, 20*time.Millisecond)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, 20*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn()
}

// Save replaces the recorded run.
func (s *Store) Save(ctx context.Context, run Run) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	return s.withLock(ctx, true, func() error {
		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, s.path); err != nil {
			return fmt.Errorf("replace %s: %w", s.path, err)
		}
		return nil
	})
}

// Load returns the recorded run or ErrNoRun.
func (s *Store) Load(ctx context.Context) (Run, error) {
	var run Run
	err := s.withLock(ctx, false, func() error {
		data, err := os.ReadFile(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoRun
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		if err := yaml.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("decode %s: %w", s.path, err)
		}
		if run.RunID == 0 {
			return ErrNoRun
		}
		return nil
	})
	return run, err
}

// Clear forgets the recorded run. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	return s.withLock(ctx, true, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", s.path, err)
		}
		return nil
	})
}
