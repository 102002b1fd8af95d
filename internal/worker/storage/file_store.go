package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// FileStore keeps the state as a JSON file, replaced atomically on every write
type FileStore struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	state domain.State
}

// NewFileStore opens path, starting from an empty state when it does not exist
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	s := &FileStore{path: path, logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("No state file found, starting fresh", slog.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
		}
		logger.Info("Loaded worker state",
			slog.String("path", path),
			slog.String("client_id", s.state.ClientID),
			slog.Bool("job_in_flight", s.state.CurrentJob != nil),
		)
	}

	return s, nil
}

// Load returns a copy of the current state
func (s *FileStore) Load(ctx context.Context) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

// Update applies fn and persists the result
func (s *FileStore) Update(ctx context.Context, fn func(*domain.State) error) (domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.State{}, err
	}

	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return domain.State{}, err
	}

	if err := s.write(&next); err != nil {
		return domain.State{}, err
	}

	s.state = next
	return next.Clone(), nil
}

func (s *FileStore) write(state *domain.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Close is a no-op, every Update is already on disk
func (s *FileStore) Close() error {
	return nil
}
