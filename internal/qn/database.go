package qn

import (
	"time"

	"github.com/google/uuid"

	"qnote/internal/model"
)

// Database stores asset records and the operation log.
// Find methods return (nil, nil) when nothing matches.
type Database interface {
	// Asset records

	// CreateAsset inserts a record for an asset that was just saved.
	CreateAsset(asset *model.Asset) error

	// FindAsset returns the record for id, live or recycled.
	FindAsset(id uuid.UUID) (*model.Asset, error)

	// FindAssetsByQuestion returns the live assets of a question, oldest first.
	FindAssetsByQuestion(questionID int64) ([]*model.Asset, error)

	// MarkAssetRecycled records that the asset file now lives at path in the
	// recycle bin. It is only called after the move succeeded. A record that
	// is already recycled is not changed and ErrAssetRecycled is returned.
	MarkAssetRecycled(id uuid.UUID, path string, deletedAt time.Time) error

	// DeleteAsset removes the record. Deleting a missing record is not an error.
	DeleteAsset(id uuid.UUID) error

	// Operation log

	CreateOperation(operation, parameters string, startedAt time.Time) (*model.Operation, error)
	FinishOperation(id int64, status string, finishedAt time.Time) error
	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// CheckMigrations fails when the schema is not at the latest version.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	Close() error
}
