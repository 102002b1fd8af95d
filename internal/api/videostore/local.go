package videostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/domain"
)

// LocalStore keeps videos in a directory
type LocalStore struct {
	dir    string
	logger *slog.Logger
}

// NewLocalStore creates dir if needed
func NewLocalStore(dir string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create video directory: %w", err)
	}
	return &LocalStore{dir: dir, logger: logger}, nil
}

func (s *LocalStore) Save(_ context.Context, jobID string, data []byte, _ string) (string, error) {
	name, err := ObjectName(jobID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write video: %w", err)
	}
	return path, nil
}

func (s *LocalStore) Open(_ context.Context, jobID string) (io.ReadCloser, int64, error) {
	name, err := ObjectName(jobID)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, domain.ErrVideoNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open video: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat video: %w", err)
	}
	return f, info.Size(), nil
}

func (s *LocalStore) Cleanup(_ context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read video directory: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Warn("Failed to delete old video",
				slog.String("file", e.Name()),
				slog.Any("error", err),
			)
			continue
		}
		s.logger.Info("Deleted old video", slog.String("file", e.Name()))
		deleted++
	}
	return deleted, nil
}
