// Package store keeps a record of every submission outcome.
package store

import (
	"context"
	"errors"

	"github.com/lei/pipeline-trigger/internal/models"
)

// ErrNotFound indicates no record exists for the submission id
var ErrNotFound = errors.New("submission not found")

// Store persists submission records
type Store interface {
	Save(ctx context.Context, record *models.SubmissionRecord) error
	Get(ctx context.Context, id string) (*models.SubmissionRecord, error)
	Close() error
}
