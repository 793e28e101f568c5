package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"qnote/internal/model"
	"qnote/internal/qn"
)

// newTestDB creates a new in-memory database with the schema migrated.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

var testTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func newAsset(questionID int64, path string) *model.Asset {
	return &model.Asset{
		ID:         uuid.New(),
		QuestionID: questionID,
		Type:       model.AssetTypeQuestion,
		Path:       path,
		CreatedAt:  testTime,
	}
}

func TestSQLiteDatabase_FindAsset(t *testing.T) {
	t.Run("returns nil when asset not found", func(t *testing.T) {
		db := newTestDB(t)

		a, err := db.FindAsset(uuid.New())
		if err != nil {
			t.Fatalf("FindAsset() error = %v", err)
		}
		if a != nil {
			t.Errorf("FindAsset() = %v, want nil", a)
		}
	})

	t.Run("finds created asset", func(t *testing.T) {
		db := newTestDB(t)
		want := newAsset(7, "assets/ab/cd/abcd.jpg")
		want.Type = model.AssetTypeExplain

		if err := db.CreateAsset(want); err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}

		got, err := db.FindAsset(want.ID)
		if err != nil {
			t.Fatalf("FindAsset() error = %v", err)
		}
		if got == nil {
			t.Fatal("FindAsset() returned nil, want asset")
		}
		if got.ID != want.ID {
			t.Errorf("ID = %v, want %v", got.ID, want.ID)
		}
		if got.QuestionID != 7 {
			t.Errorf("QuestionID = %d, want 7", got.QuestionID)
		}
		if got.Type != model.AssetTypeExplain {
			t.Errorf("Type = %q, want %q", got.Type, model.AssetTypeExplain)
		}
		if got.Path != want.Path {
			t.Errorf("Path = %q, want %q", got.Path, want.Path)
		}
		if !got.CreatedAt.Equal(testTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testTime)
		}
		if got.Deleted() {
			t.Error("new asset reported as deleted")
		}
	})
}

func TestSQLiteDatabase_CreateAsset_DuplicatePath(t *testing.T) {
	db := newTestDB(t)

	if err := db.CreateAsset(newAsset(1, "assets/00/11/x.png")); err != nil {
		t.Fatalf("first CreateAsset() error = %v", err)
	}
	if err := db.CreateAsset(newAsset(2, "assets/00/11/x.png")); err == nil {
		t.Error("CreateAsset() with duplicate path succeeded, want error")
	}
}

func TestSQLiteDatabase_FindAssetsByQuestion(t *testing.T) {
	db := newTestDB(t)

	first := newAsset(1, "assets/aa/aa/1.jpg")
	second := newAsset(1, "assets/bb/bb/2.jpg")
	second.CreatedAt = testTime.Add(time.Minute)
	recycled := newAsset(1, "assets/cc/cc/3.jpg")
	other := newAsset(2, "assets/dd/dd/4.jpg")

	for _, a := range []*model.Asset{second, first, recycled, other} {
		if err := db.CreateAsset(a); err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}
	}
	if err := db.MarkAssetRecycled(recycled.ID, "garbages/738156/3.jpg", testTime); err != nil {
		t.Fatalf("MarkAssetRecycled() error = %v", err)
	}

	got, err := db.FindAssetsByQuestion(1)
	if err != nil {
		t.Fatalf("FindAssetsByQuestion() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (recycled and foreign assets excluded)", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("assets not ordered by creation time: got %v, %v", got[0].ID, got[1].ID)
	}

	none, err := db.FindAssetsByQuestion(99)
	if err != nil {
		t.Fatalf("FindAssetsByQuestion() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("len = %d, want 0", len(none))
	}
}

func TestSQLiteDatabase_MarkAssetRecycled(t *testing.T) {
	t.Run("updates path and deleted_at", func(t *testing.T) {
		db := newTestDB(t)
		a := newAsset(3, "assets/ab/cd/abcd.png")
		if err := db.CreateAsset(a); err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}

		deletedAt := testTime.Add(time.Hour)
		if err := db.MarkAssetRecycled(a.ID, "garbages/738156/abcd.png", deletedAt); err != nil {
			t.Fatalf("MarkAssetRecycled() error = %v", err)
		}

		got, err := db.FindAsset(a.ID)
		if err != nil {
			t.Fatalf("FindAsset() error = %v", err)
		}
		if got.Path != "garbages/738156/abcd.png" {
			t.Errorf("Path = %q, want recycled path", got.Path)
		}
		if got.DeletedAt == nil || !got.DeletedAt.Equal(deletedAt) {
			t.Errorf("DeletedAt = %v, want %v", got.DeletedAt, deletedAt)
		}
	})

	t.Run("fails for unknown asset", func(t *testing.T) {
		db := newTestDB(t)
		err := db.MarkAssetRecycled(uuid.New(), "garbages/1/x", testTime)
		if err == nil {
			t.Fatal("MarkAssetRecycled() on missing asset succeeded, want error")
		}
		if errors.Is(err, qn.ErrAssetRecycled) {
			t.Errorf("MarkAssetRecycled() error = %v, want a not-found error", err)
		}
	})

	t.Run("keeps the first recycled path", func(t *testing.T) {
		db := newTestDB(t)
		a := newAsset(3, "assets/ab/cd/abcd.png")
		if err := db.CreateAsset(a); err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}
		if err := db.MarkAssetRecycled(a.ID, "garbages/738156/abcd.png", testTime); err != nil {
			t.Fatalf("MarkAssetRecycled() error = %v", err)
		}

		err := db.MarkAssetRecycled(a.ID, "assets/ab/cd/abcd.png", testTime.Add(time.Hour))
		if !errors.Is(err, qn.ErrAssetRecycled) {
			t.Fatalf("second MarkAssetRecycled() error = %v, want ErrAssetRecycled", err)
		}

		got, err := db.FindAsset(a.ID)
		if err != nil {
			t.Fatalf("FindAsset() error = %v", err)
		}
		if got.Path != "garbages/738156/abcd.png" {
			t.Errorf("Path = %q, want the first recycled path", got.Path)
		}
		if got.DeletedAt == nil || !got.DeletedAt.Equal(testTime) {
			t.Errorf("DeletedAt = %v, want %v", got.DeletedAt, testTime)
		}
	})
}

func TestSQLiteDatabase_DeleteAsset(t *testing.T) {
	db := newTestDB(t)
	a := newAsset(1, "assets/ab/cd/abcd")
	if err := db.CreateAsset(a); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	if err := db.DeleteAsset(a.ID); err != nil {
		t.Fatalf("DeleteAsset() error = %v", err)
	}
	got, err := db.FindAsset(a.ID)
	if err != nil {
		t.Fatalf("FindAsset() error = %v", err)
	}
	if got != nil {
		t.Error("asset still present after DeleteAsset()")
	}

	if err := db.DeleteAsset(a.ID); err != nil {
		t.Errorf("second DeleteAsset() error = %v, want nil", err)
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	db := newTestDB(t)

	first, err := db.CreateOperation("AttachAssets", "question=1", testTime)
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if first.ID == 0 {
		t.Fatal("CreateOperation() returned zero ID")
	}
	if first.Status != "running" {
		t.Errorf("Status = %q, want running", first.Status)
	}

	second, err := db.CreateOperation("PurgeExpired", "keep_days=30", testTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if err := db.FinishOperation(first.ID, "success", testTime.Add(2*time.Second)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := db.ListOperations(10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len = %d, want 2", len(ops))
	}
	if ops[0].ID != second.ID {
		t.Errorf("ops[0].ID = %d, want newest (%d)", ops[0].ID, second.ID)
	}
	if ops[0].FinishedAt != nil {
		t.Error("unfinished operation has FinishedAt")
	}
	if ops[1].Status != "success" {
		t.Errorf("ops[1].Status = %q, want success", ops[1].Status)
	}
	if ops[1].FinishedAt == nil || !ops[1].FinishedAt.Equal(testTime.Add(2*time.Second)) {
		t.Errorf("ops[1].FinishedAt = %v", ops[1].FinishedAt)
	}
	if ops[1].Parameters != "question=1" {
		t.Errorf("ops[1].Parameters = %q", ops[1].Parameters)
	}

	limited, err := db.ListOperations(1)
	if err != nil {
		t.Fatalf("ListOperations(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len = %d, want 1", len(limited))
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on fresh database succeeded, want error")
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() after Migrate() error = %v", err)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	dir := t.TempDir()
	db, err := NewSQLiteDatabase(filepath.Join(dir, "source.db"))
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	a := newAsset(5, "assets/ab/cd/abcd.ogg")
	if err := db.CreateAsset(a); err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	dest := filepath.Join(dir, "copy.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	restored, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()

	if err := restored.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	got, err := restored.FindAsset(a.ID)
	if err != nil {
		t.Fatalf("FindAsset() on backup error = %v", err)
	}
	if got == nil || got.Path != a.Path {
		t.Errorf("backup asset = %v, want path %q", got, a.Path)
	}

	if err := db.BackupTo(dest); err == nil {
		t.Error("BackupTo() over existing file succeeded, want error")
	}
}
