package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"assets", "operations", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if !errors.Is(err, ErrNeedsMigration) {
		t.Fatalf("CheckDBMigrationStatus() = %v, want ErrNeedsMigration", err)
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestVersion_MatchesLatest(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if latest < 1 {
		t.Errorf("LatestVersion() = %d, want >= 1", latest)
	}

	version, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if dirty {
		t.Error("Version() reported dirty database")
	}
	if version != latest {
		t.Errorf("Version() = %d, want %d", version, latest)
	}
}

func TestSchema_AssetTypeConstraint(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO assets (id, question_id, type, path, created_at)
		VALUES ('a1', 1, 'question', 'assets/00/00/a1.jpg', datetime('now'))`)
	if err != nil {
		t.Fatalf("insert valid asset: %v", err)
	}

	_, err = db.Exec(`INSERT INTO assets (id, question_id, type, path, created_at)
		VALUES ('a2', 1, 'diagram', 'assets/00/00/a2.jpg', datetime('now'))`)
	if err == nil {
		t.Error("expected check constraint violation for unknown type, but insert succeeded")
	}
}

func TestSchema_AssetPathUnique(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `INSERT INTO assets (id, question_id, type, path, created_at)
		VALUES (?, 1, 'answer', 'assets/ab/cd/same.png', datetime('now'))`
	if _, err := db.Exec(insert, "a1"); err != nil {
		t.Fatalf("insert first asset: %v", err)
	}
	if _, err := db.Exec(insert, "a2"); err == nil {
		t.Error("expected unique constraint violation for duplicate path, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	return db
}
