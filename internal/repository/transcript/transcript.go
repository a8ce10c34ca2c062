// Package transcript persists transcripts keyed by video ID. Every backend
// enforces a single record per video: Create reports CodeConflict when a
// record for the video already exists and never overwrites it.
package transcript

import (
	"context"

	"github.com/Taichi-iskw/ytscribe/internal/model"
)

// Repository defines operations for Transcript persistence
type Repository interface {
	// GetByVideoID returns CodeNotFound when no transcript exists for the video
	GetByVideoID(ctx context.Context, videoID string) (*model.Transcript, error)
	GetByID(ctx context.Context, id string) (*model.Transcript, error)
	// Create stores a new transcript atomically, or fails with CodeConflict
	Create(ctx context.Context, transcript *model.Transcript) error
}
