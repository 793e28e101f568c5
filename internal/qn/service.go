// Package qn holds the domain interfaces of qnote and the service that
// keeps asset records consistent with the files of the asset store.
package qn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"

	"qnote/internal/asset"
	"qnote/internal/layout"
	"qnote/internal/logicalday"
	"qnote/internal/model"
	"qnote/internal/pathsafe"
)

// ErrAssetNotFound is returned when no record exists for an asset id.
var ErrAssetNotFound = errors.New("asset not found")

// ErrAssetRecycled is returned when reading an asset that was recycled.
var ErrAssetRecycled = errors.New("asset is in the recycle bin")

// Service is the orchestration layer between the CLI and the storage core.
// It owns the mapping from records to files: records are written only after
// the corresponding file operation succeeded, and paths always come from the
// asset store, never from string building here.
type Service struct {
	store    *asset.Store
	garbage  *asset.GarbageManager
	database Database
	calendar logicalday.Calendar
	metrics  Metrics
	logger   Logger
	clock    Clock
}

// NewService creates a Service. A nil metrics, logger or clock is replaced by
// its no-op or real implementation.
func NewService(store *asset.Store, garbage *asset.GarbageManager, database Database, calendar logicalday.Calendar, metrics Metrics, logger Logger, clock Clock) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		store:    store,
		garbage:  garbage,
		database: database,
		calendar: calendar,
		metrics:  metrics,
		logger:   logger,
		clock:    clock,
	}
}

// Today returns the current logical day.
func (s *Service) Today() logicalday.Day {
	return s.calendar.FromTime(s.clock.Now())
}

// AttachAssets saves each source file and records it as an asset of the
// question. Either every file is attached or none is: when a save or an
// insert fails, the files and records created by this call are removed.
func (s *Service) AttachAssets(questionID int64, typ model.AssetType, sources []string) ([]*model.Asset, error) {
	if _, err := model.ParseAssetType(string(typ)); err != nil {
		return nil, err
	}

	ids, paths, err := s.store.SaveMany(sources)
	if err != nil {
		s.reportStorageError("save failed", err, "question", questionID)
		s.discard(ids, paths)
		return nil, fmt.Errorf("saving assets: %w", err)
	}

	now := s.clock.Now()
	assets := make([]*model.Asset, 0, len(ids))
	for i, id := range ids {
		a := &model.Asset{
			ID:         id,
			QuestionID: questionID,
			Type:       typ,
			Path:       paths[i],
			CreatedAt:  now,
		}
		if err := s.database.CreateAsset(a); err != nil {
			for _, done := range assets {
				if derr := s.database.DeleteAsset(done.ID); derr != nil {
					s.logger.Error("removing asset record", "asset", done.ID, "error", derr)
				}
			}
			s.discard(ids, paths)
			return nil, fmt.Errorf("recording asset %s: %w", id, err)
		}
		assets = append(assets, a)
		s.logger.Info("asset attached", "asset", id, "question", questionID, "type", typ, "path", a.Path)
	}

	s.metrics.AssetsSaved(len(assets))
	return assets, nil
}

// discard deletes files that were saved but never committed to a record.
func (s *Service) discard(ids []uuid.UUID, paths []string) {
	for i, id := range ids {
		if err := s.store.DeleteLive(id, layout.ExtensionOf(paths[i])); err != nil {
			s.logger.Error("discarding uncommitted asset", "asset", id, "path", paths[i], "error", err)
			continue
		}
		s.logger.Debug("discarded uncommitted asset", "asset", id, "path", paths[i])
	}
}

// ListAssets returns the live assets of a question.
func (s *Service) ListAssets(questionID int64) ([]*model.Asset, error) {
	assets, err := s.database.FindAssetsByQuestion(questionID)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	return assets, nil
}

// GetAsset returns the record of an asset, live or recycled.
func (s *Service) GetAsset(id uuid.UUID) (*model.Asset, error) {
	a, err := s.database.FindAsset(id)
	if err != nil {
		return nil, fmt.Errorf("finding asset: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return a, nil
}

// ReadAsset returns the contents of a live asset.
func (s *Service) ReadAsset(id uuid.UUID) ([]byte, error) {
	a, ext, err := s.liveAsset(id)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(a.ID, ext)
	if err != nil {
		s.reportStorageError("read failed", err, "asset", id)
		return nil, fmt.Errorf("reading asset %s: %w", id, err)
	}
	return data, nil
}

// OpenAsset returns a reader over a live asset. The caller must close it.
func (s *Service) OpenAsset(id uuid.UUID) (io.ReadCloser, error) {
	a, ext, err := s.liveAsset(id)
	if err != nil {
		return nil, err
	}
	rc, err := s.store.Open(a.ID, ext)
	if err != nil {
		s.reportStorageError("open failed", err, "asset", id)
		return nil, fmt.Errorf("opening asset %s: %w", id, err)
	}
	return rc, nil
}

// liveAsset loads a live record and checks that its stored path is the one
// the layout assigns to it. Records are not trusted to hold safe paths.
func (s *Service) liveAsset(id uuid.UUID) (*model.Asset, string, error) {
	a, err := s.GetAsset(id)
	if err != nil {
		return nil, "", err
	}
	if a.Deleted() {
		return nil, "", fmt.Errorf("%w: %s", ErrAssetRecycled, id)
	}

	ext := layout.ExtensionOf(a.Path)
	e, err := layout.ParseExtension(ext)
	if err != nil {
		s.reportStorageError("invalid stored path", err, "asset", id, "path", a.Path)
		return nil, "", fmt.Errorf("asset %s has an invalid path: %w", id, err)
	}
	want, err := s.store.Layout().Rel(s.store.Layout().AssetFile(a.ID, e))
	if err != nil {
		return nil, "", fmt.Errorf("locating asset %s: %w", id, err)
	}
	if a.Path != want {
		s.logger.Warn("stored asset path does not match layout", "asset", id, "path", a.Path, "expected", want, "security", true)
		s.metrics.SecurityRejected()
		return nil, "", fmt.Errorf("asset %s: stored path %q does not match layout", id, a.Path)
	}
	return a, ext, nil
}

// RecycleAsset moves a live asset into today's recycle bin directory and
// marks its record deleted. Recycling an asset that is already recycled is
// a no-op. A live record whose file is already gone is still marked deleted.
func (s *Service) RecycleAsset(id uuid.UUID) (*model.Asset, error) {
	a, err := s.GetAsset(id)
	if err != nil {
		return nil, err
	}
	if a.Deleted() {
		return a, nil
	}

	day := s.Today()
	newPath, err := s.store.MoveToRecycleOne(a.ID, layout.ExtensionOf(a.Path), day)
	if err != nil {
		if !errors.Is(err, asset.ErrNotFound) {
			s.reportStorageError("recycle failed", err, "asset", id)
			s.metrics.RecycleFailed(1)
			return nil, fmt.Errorf("recycling asset %s: %w", id, err)
		}
		newPath = s.missingFilePath(a, day)
	}

	if err := s.markRecycled(a, newPath); err != nil {
		if errors.Is(err, ErrAssetRecycled) {
			return s.GetAsset(id)
		}
		return nil, err
	}
	s.metrics.AssetsRecycled(1)
	return a, nil
}

// missingFilePath picks the path to record for a live asset whose file was
// not found. If another caller already moved it into day's bin directory,
// that is where it lives; otherwise the file is gone and the path is left
// unchanged.
func (s *Service) missingFilePath(a *model.Asset, day logicalday.Day) string {
	if e, err := layout.ParseExtension(layout.ExtensionOf(a.Path)); err == nil {
		l := s.store.Layout()
		abs := l.GarbageFile(a.ID, e, day)
		if _, err := os.Stat(abs); err == nil {
			if rel, err := l.Rel(abs); err == nil {
				s.logger.Info("asset already moved to the recycle bin", "asset", a.ID, "path", rel)
				return rel
			}
		}
	}
	s.logger.Warn("asset file already gone, marking record recycled", "asset", a.ID, "path", a.Path)
	return a.Path
}

// RecycleResult reports a RecycleQuestionAssets call.
type RecycleResult struct {
	Recycled []*model.Asset
	Failed   []asset.MoveFailure
}

// RecycleQuestionAssets recycles every live asset of a question. Each asset
// is attempted independently; failures are collected, not returned as an
// error. The error is reserved for the record database.
func (s *Service) RecycleQuestionAssets(questionID int64) (*RecycleResult, error) {
	assets, err := s.database.FindAssetsByQuestion(questionID)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}

	day := s.Today()
	refs := make([]asset.Ref, len(assets))
	for i, a := range assets {
		refs[i] = asset.Ref{ID: a.ID, Ext: layout.ExtensionOf(a.Path)}
	}

	moved, failed := s.store.MoveToRecycle(refs, day)

	failedByID := make(map[uuid.UUID]error, len(failed))
	for _, f := range failed {
		failedByID[f.ID] = f.Err
	}

	result := &RecycleResult{}
	next := 0
	for _, a := range assets {
		var newPath string
		if ferr, ok := failedByID[a.ID]; ok {
			if !errors.Is(ferr, asset.ErrNotFound) {
				s.reportStorageError("recycle failed", ferr, "asset", a.ID, "question", questionID)
				result.Failed = append(result.Failed, asset.MoveFailure{ID: a.ID, Err: ferr})
				continue
			}
			newPath = s.missingFilePath(a, day)
		} else {
			newPath = moved[next]
			next++
		}

		if err := s.markRecycled(a, newPath); err != nil {
			if !errors.Is(err, ErrAssetRecycled) {
				return result, err
			}
			stored, gerr := s.GetAsset(a.ID)
			if gerr != nil {
				return result, gerr
			}
			a = stored
		}
		result.Recycled = append(result.Recycled, a)
	}

	s.metrics.AssetsRecycled(len(result.Recycled))
	s.metrics.RecycleFailed(len(result.Failed))
	return result, nil
}

// markRecycled records the move. A record another caller already marked
// recycled is left alone and ErrAssetRecycled is returned.
func (s *Service) markRecycled(a *model.Asset, newPath string) error {
	now := s.clock.Now()
	if err := s.database.MarkAssetRecycled(a.ID, newPath, now); err != nil {
		if errors.Is(err, ErrAssetRecycled) {
			s.logger.Info("asset record already marked recycled", "asset", a.ID)
			return err
		}
		s.logger.Error("file recycled but record not updated", "asset", a.ID, "path", newPath, "error", err)
		return fmt.Errorf("marking asset %s recycled: %w", a.ID, err)
	}
	a.Path = newPath
	a.DeletedAt = &now
	s.logger.Info("asset recycled", "asset", a.ID, "path", newPath)
	return nil
}

// GarbageStats scans the recycle bin.
func (s *Service) GarbageStats() (asset.GarbageStats, error) {
	stats, err := s.garbage.Stats()
	if err != nil {
		return asset.GarbageStats{}, fmt.Errorf("scanning recycle bin: %w", err)
	}
	s.metrics.BinObserved(stats.FileCount, stats.TotalSize)
	return stats, nil
}

// ExpiredPreview describes what PurgeExpired would delete right now.
type ExpiredPreview struct {
	Threshold logicalday.Day // first day that is kept
	Entries   []asset.GarbageEntry
	TotalSize int64
}

// PreviewExpired lists the recycled files older than keepDays days. It
// deletes nothing.
func (s *Service) PreviewExpired(keepDays int) (*ExpiredPreview, error) {
	if err := checkKeepDays(keepDays); err != nil {
		return nil, err
	}
	today := s.Today()

	entries, err := s.garbage.CheckExpiration(keepDays, today)
	if err != nil {
		return nil, fmt.Errorf("checking expiration: %w", err)
	}

	preview := &ExpiredPreview{
		Threshold: asset.ExpiryThreshold(keepDays, today),
		Entries:   entries,
	}
	for _, e := range entries {
		preview.TotalSize += e.Size
	}
	return preview, nil
}

// ExpiredSize returns the total size of the files PurgeExpired would delete.
func (s *Service) ExpiredSize(keepDays int) (int64, error) {
	if err := checkKeepDays(keepDays); err != nil {
		return 0, err
	}
	size, err := s.garbage.ExpiredSize(keepDays, s.Today())
	if err != nil {
		return 0, fmt.Errorf("computing expired size: %w", err)
	}
	return size, nil
}

// PurgeExpired permanently deletes the recycled files older than keepDays
// days and the records that pointed at them. Callers must have confirmed
// the purge with the user first.
func (s *Service) PurgeExpired(keepDays int) ([]string, error) {
	if err := checkKeepDays(keepDays); err != nil {
		return nil, err
	}
	return s.PurgeBefore(asset.ExpiryThreshold(keepDays, s.Today()))
}

// PurgeBefore permanently deletes the recycled files whose day is before
// threshold. Callers pass the Threshold of the preview the user confirmed.
func (s *Service) PurgeBefore(threshold logicalday.Day) ([]string, error) {
	entries, err := s.garbage.EntriesBefore(threshold)
	if err != nil {
		return nil, fmt.Errorf("checking expiration: %w", err)
	}

	deleted, err := s.garbage.CleanupBefore(threshold)
	s.afterPurge(deleted, sizeOf(entries, deleted))
	if err != nil {
		s.reportStorageError("purge failed", err, "threshold", threshold)
		return deleted, fmt.Errorf("purging recycle bin: %w", err)
	}
	s.logger.Info("recycle bin purged", "threshold", threshold, "files", len(deleted))
	return deleted, nil
}

// GarbageDay lists the files recycled on day.
func (s *Service) GarbageDay(day logicalday.Day) ([]asset.GarbageEntry, error) {
	var entries []asset.GarbageEntry
	err := s.garbage.Walk(func(e asset.GarbageEntry) error {
		if e.Day == day {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning recycle bin: %w", err)
	}
	return entries, nil
}

// PurgeDay permanently deletes everything recycled on day. Callers must
// have confirmed the purge with the user first.
func (s *Service) PurgeDay(day logicalday.Day) ([]string, error) {
	entries, err := s.GarbageDay(day)
	if err != nil {
		return nil, err
	}

	deleted, err := s.garbage.CleanupDay(day)
	s.afterPurge(deleted, sizeOf(entries, deleted))
	if err != nil {
		s.reportStorageError("purge failed", err, "day", day)
		return deleted, fmt.Errorf("purging day %s: %w", day, err)
	}
	s.logger.Info("recycle bin day purged", "day", day, "files", len(deleted))
	return deleted, nil
}

// afterPurge drops the records of purged files. Purged files that have no
// record (or a name that is not an asset id) are ignored.
func (s *Service) afterPurge(deleted []string, bytes int64) {
	for _, p := range deleted {
		s.logger.Debug("purged", "path", p)
		name := path.Base(p)
		id, err := uuid.Parse(strings.TrimSuffix(name, path.Ext(name)))
		if err != nil {
			continue
		}
		if err := s.database.DeleteAsset(id); err != nil {
			s.logger.Error("removing purged asset record", "asset", id, "error", err)
		}
	}
	s.metrics.AssetsPurged(len(deleted), bytes)
}

func checkKeepDays(keepDays int) error {
	if keepDays < 0 {
		return fmt.Errorf("keep days must not be negative: %d", keepDays)
	}
	if keepDays > asset.MaxKeepDays {
		return fmt.Errorf("keep days too large: %d (max %d)", keepDays, asset.MaxKeepDays)
	}
	return nil
}

// sizeOf sums the sizes of the entries whose path is in paths.
func sizeOf(entries []asset.GarbageEntry, paths []string) int64 {
	done := make(map[string]bool, len(paths))
	for _, p := range paths {
		done[p] = true
	}
	var total int64
	for _, e := range entries {
		if done[e.Path] {
			total += e.Size
		}
	}
	return total
}

// reportStorageError logs err, routing rejected traversal attempts to the
// security log.
func (s *Service) reportStorageError(msg string, err error, args ...any) {
	if pathsafe.IsTraversal(err) {
		s.metrics.SecurityRejected()
		s.logger.Warn("path traversal rejected", append(args, "error", err, "security", true)...)
		return
	}
	s.logger.Error(msg, append(args, "error", err)...)
}
