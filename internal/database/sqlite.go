package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qnote/internal/database/migrations"
	"qnote/internal/model"
	"qnote/internal/qn"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements qn.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ qn.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path. path can be a file path or
// ":memory:". The schema is not touched; see Migrate and CheckMigrations.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for its configuration.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens a SQLite connection with foreign keys enabled.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Asset records

func (s *SQLiteDatabase) CreateAsset(a *model.Asset) error {
	_, err := s.db.ExecContext(context.Background(), insertAsset,
		a.ID.String(), a.QuestionID, string(a.Type), a.Path, a.CreatedAt.UTC(), nullTime(a.DeletedAt))
	if err != nil {
		return fmt.Errorf("inserting asset: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindAsset(id uuid.UUID) (*model.Asset, error) {
	row := s.db.QueryRowContext(context.Background(), getAsset, id.String())
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding asset: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) FindAssetsByQuestion(questionID int64) ([]*model.Asset, error) {
	rows, err := s.db.QueryContext(context.Background(), getLiveAssetsByQuestion, questionID)
	if err != nil {
		return nil, fmt.Errorf("finding assets for question %d: %w", questionID, err)
	}
	defer rows.Close()

	var assets []*model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assets: %w", err)
	}
	return assets, nil
}

func (s *SQLiteDatabase) MarkAssetRecycled(id uuid.UUID, path string, deletedAt time.Time) error {
	res, err := s.db.ExecContext(context.Background(), markAssetRecycled, path, deletedAt.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("marking asset recycled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking asset recycled: %w", err)
	}
	if n == 0 {
		a, err := s.FindAsset(id)
		if err != nil {
			return fmt.Errorf("marking asset recycled: %w", err)
		}
		if a != nil && a.Deleted() {
			return fmt.Errorf("marking asset recycled: %w: %s", qn.ErrAssetRecycled, id)
		}
		return fmt.Errorf("marking asset recycled: no asset with id %s", id)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteAsset(id uuid.UUID) error {
	if _, err := s.db.ExecContext(context.Background(), deleteAsset, id.String()); err != nil {
		return fmt.Errorf("deleting asset: %w", err)
	}
	return nil
}

// Operation log

func (s *SQLiteDatabase) CreateOperation(operation, parameters string, startedAt time.Time) (*model.Operation, error) {
	startedAt = startedAt.UTC()
	res, err := s.db.ExecContext(context.Background(), insertOperation, operation, parameters, startedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return &model.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt,
		Status:     "running",
	}, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string, finishedAt time.Time) error {
	if _, err := s.db.ExecContext(context.Background(), finishOperation, status, finishedAt.UTC(), id); err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(context.Background(), listOperations, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.FinishedAt = timePtr(finished)
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path ("" when wrapping a connection).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database to %s: %w", destPath, err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*model.Asset, error) {
	var (
		a       model.Asset
		id      string
		typ     string
		deleted sql.NullTime
	)
	if err := row.Scan(&id, &a.QuestionID, &typ, &a.Path, &a.CreatedAt, &deleted); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid asset id %q: %w", id, err)
	}
	a.ID = parsed
	a.Type = model.AssetType(typ)
	a.DeletedAt = timePtr(deleted)
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
