package testutil

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"qnote/internal/database"
	"qnote/internal/model"
	"qnote/internal/qn"
)

// NewTestDatabase creates a new in-memory SQLite database with the schema
// migrated. The database is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

// ErrInjected is the error returned by FaultyDatabase.
var ErrInjected = errors.New("injected database failure")

// FaultyDatabase wraps a Database and fails selected calls with ErrInjected.
type FaultyDatabase struct {
	qn.Database

	// FailCreateAfter makes CreateAsset fail once this many calls succeeded.
	// Negative disables the fault.
	FailCreateAfter int
	// FailMarkRecycled makes every MarkAssetRecycled call fail.
	FailMarkRecycled bool
	// Stale maps an asset id to a record FindAsset returns once in place of
	// the stored one, as if read before another writer changed it.
	Stale map[uuid.UUID]model.Asset

	creates int
}

// NewFaultyDatabase wraps db with all faults disabled.
func NewFaultyDatabase(db qn.Database) *FaultyDatabase {
	return &FaultyDatabase{Database: db, FailCreateAfter: -1}
}

func (d *FaultyDatabase) CreateAsset(a *model.Asset) error {
	if d.FailCreateAfter >= 0 && d.creates >= d.FailCreateAfter {
		return ErrInjected
	}
	d.creates++
	return d.Database.CreateAsset(a)
}

func (d *FaultyDatabase) FindAsset(id uuid.UUID) (*model.Asset, error) {
	if a, ok := d.Stale[id]; ok {
		delete(d.Stale, id)
		return &a, nil
	}
	return d.Database.FindAsset(id)
}

func (d *FaultyDatabase) MarkAssetRecycled(id uuid.UUID, path string, at time.Time) error {
	if d.FailMarkRecycled {
		return ErrInjected
	}
	return d.Database.MarkAssetRecycled(id, path, at)
}
