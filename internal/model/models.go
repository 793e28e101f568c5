package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetType tags which part of a question an asset illustrates.
type AssetType string

const (
	AssetTypeQuestion AssetType = "question"
	AssetTypeAnswer   AssetType = "answer"
	AssetTypeExplain  AssetType = "explain"
	AssetTypeOther    AssetType = "other"
)

// ParseAssetType validates s as an AssetType.
func ParseAssetType(s string) (AssetType, error) {
	switch t := AssetType(s); t {
	case AssetTypeQuestion, AssetTypeAnswer, AssetTypeExplain, AssetTypeOther:
		return t, nil
	default:
		return "", fmt.Errorf("unknown asset type: %q", s)
	}
}

// Asset is the record of one stored resource attached to a question.
type Asset struct {
	ID         uuid.UUID
	QuestionID int64
	Type       AssetType
	Path       string // Relative to the data root, as returned by the asset store
	CreatedAt  time.Time
	DeletedAt  *time.Time // Set once the file has been moved to the recycle bin
}

// Deleted reports whether the asset has been recycled.
func (a *Asset) Deleted() bool {
	return a.DeletedAt != nil
}

// Operation is one persisted run of a mutating CLI command.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "running", "success" or "error"
}
