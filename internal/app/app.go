package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"qnote/internal/asset"
	"qnote/internal/config"
	"qnote/internal/database"
	"qnote/internal/database/migrations"
	"qnote/internal/dataroot"
	"qnote/internal/encryption"
	"qnote/internal/logicalday"
	"qnote/internal/metrics"
	"qnote/internal/model"
	"qnote/internal/qn"
)

// ErrNotInitialized is returned when the data root has no instance
// descriptor yet.
var ErrNotInitialized = errors.New("data root is not initialized (run `qnote init`)")

// Options adjust how NewQNApp builds the application.
type Options struct {
	// Init creates the data root and migrates the database. Without it the
	// data root must already be initialized and the schema current.
	Init bool

	Clock  qn.Clock          // defaults to qn.RealClock
	IDs    asset.IDGenerator // defaults to random UUIDs
	Stderr io.Writer         // defaults to os.Stderr
}

// QNApp is the application layer between the CLI and qn.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and manages the DB lifecycle on Close.
type QNApp struct {
	cfg       *config.Config
	root      *dataroot.Context
	db        qn.Database
	encryptor qn.Encryptor
	metrics   *metrics.Metrics
	service   *qn.Service
	clock     qn.Clock
	op        *Operation
	logCloser io.Closer
}

// NewQNApp creates a fully wired QNApp from the given config.
// operation identifies the CLI command being run (e.g. "AttachAssets", "PurgeExpired").
// The caller must call Close when done.
func NewQNApp(cfg *config.Config, operation string, opts Options) (*QNApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = qn.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = asset.UUIDGenerator{}
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	calendar, err := logicalday.NewCalendar(cfg.Calendar.UTCOffsetMinutes, cfg.Calendar.CutoffHour)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar: %w", err)
	}

	latest, err := migrations.LatestVersion()
	if err != nil {
		return nil, err
	}

	if !opts.Init {
		if _, err := os.Stat(filepath.Join(cfg.DataRoot, dataroot.InstanceFileName)); errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotInitialized
		}
	}
	root, err := dataroot.Init(cfg.DataRoot, int(latest), opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("opening data root: %w", err)
	}
	if root.Instance.SchemaVersion > int(latest) {
		return nil, fmt.Errorf("data root schema version %d is newer than this binary supports (%d)", root.Instance.SchemaVersion, latest)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, root.DBPath)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if opts.Init {
		if m, ok := db.(interface{ Migrate() error }); ok {
			if err := m.Migrate(); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrating database: %w", err)
			}
		}
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := opts.Clock.Now().UTC().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.LogDir, cfg.Log, opID, opts.Stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	m := metrics.New()
	l := root.Layout()
	svc := qn.NewService(
		asset.NewStore(l, opts.IDs),
		asset.NewGarbageManager(l),
		db,
		calendar,
		m,
		&slogAdapter{l: logger},
		opts.Clock,
	)

	return &QNApp{
		cfg:       cfg,
		root:      root,
		db:        db,
		encryptor: enc,
		metrics:   m,
		service:   svc,
		clock:     opts.Clock,
		op:        NewOperation(operation, ""),
		logCloser: logCloser,
	}, nil
}

// persistOperation saves the operation to the database, giving it an
// auto-increment ID. This should only be called for mutating commands.
func (a *QNApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateOperation(a.op.Operation, parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// DataRoot returns the resolved data root.
func (a *QNApp) DataRoot() *dataroot.Context { return a.root }

// KeepDays returns the configured recycle bin retention.
func (a *QNApp) KeepDays() int { return a.cfg.Recycle.KeepDays }

// Today returns the current logical day.
func (a *QNApp) Today() logicalday.Day { return a.service.Today() }

// Initialize records the `qnote init` run. The data root itself was
// prepared by NewQNApp with Options.Init.
func (a *QNApp) Initialize() error {
	return a.persistOperation(a.root.Root)
}

// AttachAssets copies the files at rawPaths into the asset store for a question.
func (a *QNApp) AttachAssets(questionID int64, rawType string, rawPaths []string) ([]*model.Asset, error) {
	typ, err := model.ParseAssetType(rawType)
	if err != nil {
		return nil, err
	}

	sources := make([]string, len(rawPaths))
	for i, p := range rawPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		sources[i] = abs
	}

	if err := a.persistOperation(fmt.Sprintf("question=%d type=%s files=%d", questionID, typ, len(sources))); err != nil {
		return nil, err
	}
	assets, err := a.service.AttachAssets(questionID, typ, sources)
	return assets, a.op.Fail(err)
}

// ListAssets returns the live assets of a question.
func (a *QNApp) ListAssets(questionID int64) ([]*model.Asset, error) {
	return a.service.ListAssets(questionID)
}

// GetAsset returns the record for an asset id given in either UUID form.
func (a *QNApp) GetAsset(rawID string) (*model.Asset, error) {
	id, err := parseAssetID(rawID)
	if err != nil {
		return nil, err
	}
	return a.service.GetAsset(id)
}

// OpenAsset opens a live asset for reading. The caller closes it.
func (a *QNApp) OpenAsset(rawID string) (io.ReadCloser, error) {
	id, err := parseAssetID(rawID)
	if err != nil {
		return nil, err
	}
	return a.service.OpenAsset(id)
}

// RecycleAsset moves one asset into the recycle bin.
func (a *QNApp) RecycleAsset(rawID string) (*model.Asset, error) {
	id, err := parseAssetID(rawID)
	if err != nil {
		return nil, err
	}
	if err := a.persistOperation(id.String()); err != nil {
		return nil, err
	}
	recycled, err := a.service.RecycleAsset(id)
	return recycled, a.op.Fail(err)
}

// RecycleQuestionAssets moves every live asset of a question into the
// recycle bin. Per-asset failures are reported in the result and mark the
// operation failed.
func (a *QNApp) RecycleQuestionAssets(questionID int64) (*qn.RecycleResult, error) {
	if err := a.persistOperation(fmt.Sprintf("question=%d", questionID)); err != nil {
		return nil, err
	}
	result, err := a.service.RecycleQuestionAssets(questionID)
	if err == nil && len(result.Failed) > 0 {
		a.op.Status = StatusError
	}
	return result, a.op.Fail(err)
}

// GarbageStats scans the recycle bin.
func (a *QNApp) GarbageStats() (asset.GarbageStats, error) {
	return a.service.GarbageStats()
}

// PreviewExpired lists the recycled files older than keepDays days.
func (a *QNApp) PreviewExpired(keepDays int) (*qn.ExpiredPreview, error) {
	return a.service.PreviewExpired(keepDays)
}

// PurgeBefore deletes the recycled files whose day is before threshold,
// normally the Threshold of the preview the user confirmed.
func (a *QNApp) PurgeBefore(threshold logicalday.Day) ([]string, error) {
	if err := a.persistOperation(fmt.Sprintf("before=%d", threshold)); err != nil {
		return nil, err
	}
	deleted, err := a.service.PurgeBefore(threshold)
	return deleted, a.op.Fail(err)
}

// PreviewDay lists the recycled files of one logical day.
func (a *QNApp) PreviewDay(rawDay string) (logicalday.Day, []asset.GarbageEntry, error) {
	day, err := logicalday.ParseDay(rawDay)
	if err != nil {
		return 0, nil, err
	}
	entries, err := a.service.GarbageDay(day)
	return day, entries, err
}

// PurgeDay deletes everything recycled on day.
// The CLI must have confirmed with the user first.
func (a *QNApp) PurgeDay(day logicalday.Day) ([]string, error) {
	if err := a.persistOperation(fmt.Sprintf("day=%d", day)); err != nil {
		return nil, err
	}
	deleted, err := a.service.PurgeDay(day)
	return deleted, a.op.Fail(err)
}

// GetHistory returns the most recent operations.
func (a *QNApp) GetHistory(limit int) ([]*model.Operation, error) {
	return a.service.GetHistory(limit)
}

// BackupDatabase writes an encrypted, compressed snapshot of the database
// to the backups directory and returns its path.
func (a *QNApp) BackupDatabase() (string, error) {
	if !a.encryptor.IsConfigured() {
		return "", fmt.Errorf("encryption keys are not set up (run `qnote keys init`)")
	}
	if err := a.persistOperation(""); err != nil {
		return "", err
	}
	dest := filepath.Join(a.root.BackupsDir, strconv.FormatInt(a.op.ID, 10)+BackupExt)
	if err := writeBackup(a.db, a.encryptor, dest); err != nil {
		return "", a.op.Fail(err)
	}
	return dest, nil
}

// Backups lists the backup files of the data root, oldest first.
func (a *QNApp) Backups() ([]string, error) {
	return ListBackups(a.root.BackupsDir)
}

// RestoreDatabase unlocks the private key with passphrase and restores the
// backup at src into a new database file at dest. The live database is
// never touched; swapping it for dest is left to the user.
func (a *QNApp) RestoreDatabase(passphrase, src, dest string) error {
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return err
	}
	return RestoreBackup(dc, src, dest)
}

// Close finalizes the operation and closes all resources.
// For persisted operations the operation record is finished first. The
// metrics textfile is written when configured.
func (a *QNApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logCloser != nil {
		a.logCloser.Close()
	}

	return firstErr
}

// parseAssetID accepts the canonical UUID form and the 32-hex form used in
// file names.
func parseAssetID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid asset id %q: %w", raw, err)
	}
	return id, nil
}

// SetupKeys generates the backup key pair described by cfg. It does not
// need an initialized data root.
func SetupKeys(cfg config.EncryptionConfig, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return err
	}
	return enc.Setup(passphrase)
}
