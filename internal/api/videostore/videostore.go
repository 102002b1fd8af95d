// Package videostore keeps uploaded videos on local disk or in an S3 bucket.
package videostore

import (
	"context"
	"io"
	"regexp"
	"time"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/domain"
)

// Store saves and serves job videos, one {job_id}.mp4 object per job
type Store interface {
	// Save stores data for jobID and returns its location
	Save(ctx context.Context, jobID string, data []byte, contentType string) (string, error)
	// Open returns the video for jobID or domain.ErrVideoNotFound
	Open(ctx context.Context, jobID string) (io.ReadCloser, int64, error)
	// Cleanup deletes videos last modified before cutoff
	Cleanup(ctx context.Context, cutoff time.Time) (int, error)
}

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ObjectName returns the file name for jobID, rejecting ids that could
// escape the store
func ObjectName(jobID string) (string, error) {
	if !jobIDPattern.MatchString(jobID) {
		return "", domain.ErrVideoNotFound
	}
	return jobID + ".mp4", nil
}
