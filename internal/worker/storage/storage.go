// Package storage persists the worker state document.
package storage

import (
	"context"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// Store holds the single worker state document. Update runs fn against the
// latest state and writes the result back as one unit; when fn returns an
// error nothing is written and that error is returned unchanged.
type Store interface {
	Load(ctx context.Context) (domain.State, error)
	Update(ctx context.Context, fn func(*domain.State) error) (domain.State, error)
	Close() error
}
