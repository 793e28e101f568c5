// Package asset performs the physical file operations for live and recycled
// assets: saving uploads into the bucketed asset tree, moving them into the
// day-bucketed recycle bin, and scanning and purging the bin.
//
// Nothing in this package touches the record database. Callers own the
// mapping from records to asset ids and must update it themselves after a
// save, move or delete succeeds.
package asset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"qnote/internal/layout"
	"qnote/internal/logicalday"
)

// IDGenerator abstracts asset id generation so tests are deterministic.
type IDGenerator interface {
	New() uuid.UUID
}

// UUIDGenerator produces random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() uuid.UUID { return uuid.New() }

// Ref names a live asset by id and (unsanitized) extension.
type Ref struct {
	ID  uuid.UUID
	Ext string
}

// MoveFailure is one failed item of a MoveToRecycle batch.
type MoveFailure struct {
	ID  uuid.UUID
	Err error
}

// Store saves, reads, recycles and deletes asset files under a Layout.
// It holds no locks: concurrent operations on the same id race at the
// filesystem level (see MoveToRecycleOne).
type Store struct {
	layout layout.Layout
	ids    IDGenerator
}

// NewStore creates a Store. The root and its assets/garbages directories
// are expected to exist already; only per-file parent directories are
// created on demand.
func NewStore(l layout.Layout, ids IDGenerator) *Store {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Store{layout: l, ids: ids}
}

// Layout returns the layout the store addresses files with.
func (s *Store) Layout() layout.Layout { return s.layout }

// Save copies the file at srcPath into the asset tree under a fresh id.
// The extension is the lower-cased extension of srcPath. It returns the id
// and the root-relative path of the stored file.
//
// The bytes are written to a temporary file next to the destination and
// renamed into place, so a failed save never leaves a partial asset.
func (s *Store) Save(srcPath string) (uuid.UUID, string, error) {
	ext, err := layout.ParseExtension(layout.ExtensionOf(srcPath))
	if err != nil {
		return uuid.Nil, "", fromSanitize("save", err)
	}

	id := s.ids.New()
	dst := s.layout.AssetFile(id, ext)

	if _, err := os.Lstat(dst); err == nil {
		return uuid.Nil, "", ioError("save", dst, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return uuid.Nil, "", ioError("save", dst, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return uuid.Nil, "", ioError("save", srcPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return uuid.Nil, "", ioError("save", filepath.Dir(dst), err)
	}

	if err := writeFile(dst, src); err != nil {
		return uuid.Nil, "", ioError("save", dst, err)
	}

	rel, err := s.layout.Rel(dst)
	if err != nil {
		return uuid.Nil, "", ioError("save", dst, err)
	}
	return id, rel, nil
}

// SaveMany saves each source in order and stops at the first failure.
// On failure the ids and paths of the files saved before it are returned
// together with the error, so the caller can discard them.
func (s *Store) SaveMany(srcPaths []string) ([]uuid.UUID, []string, error) {
	ids := make([]uuid.UUID, 0, len(srcPaths))
	paths := make([]string, 0, len(srcPaths))

	for _, src := range srcPaths {
		id, rel, err := s.Save(src)
		if err != nil {
			return ids, paths, fmt.Errorf("saving %s: %w", src, err)
		}
		ids = append(ids, id)
		paths = append(paths, rel)
	}

	return ids, paths, nil
}

// MoveToRecycleOne renames the live file of (id, ext) into the recycle bin
// directory for day and returns its new root-relative path. It fails with
// ErrNotFound when the live file does not exist, which includes the case
// where it was already recycled. It never deletes anything.
func (s *Store) MoveToRecycleOne(id uuid.UUID, ext string, day logicalday.Day) (string, error) {
	e, err := layout.ParseExtension(ext)
	if err != nil {
		return "", fromSanitize("recycle", err)
	}

	src := s.layout.AssetFile(id, e)
	if _, err := os.Lstat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound("recycle", src)
		}
		return "", ioError("recycle", src, err)
	}

	dst := s.layout.GarbageFile(id, e, day)
	if _, err := os.Lstat(dst); err == nil {
		return "", ioError("recycle", dst, fs.ErrExist)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", ioError("recycle", filepath.Dir(dst), err)
	}

	if err := os.Rename(src, dst); err != nil {
		// Lost a race with another mover between Lstat and Rename.
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound("recycle", src)
		}
		return "", ioError("recycle", src, err)
	}

	rel, err := s.layout.Rel(dst)
	if err != nil {
		return "", ioError("recycle", dst, err)
	}
	return rel, nil
}

// MoveToRecycle attempts every ref independently. It returns the new paths
// of the assets that moved and one MoveFailure per asset that did not.
func (s *Store) MoveToRecycle(refs []Ref, day logicalday.Day) ([]string, []MoveFailure) {
	var moved []string
	var failed []MoveFailure

	for _, ref := range refs {
		rel, err := s.MoveToRecycleOne(ref.ID, ref.Ext, day)
		if err != nil {
			failed = append(failed, MoveFailure{ID: ref.ID, Err: err})
			continue
		}
		moved = append(moved, rel)
	}

	return moved, failed
}

// Read returns the full contents of a live asset.
func (s *Store) Read(id uuid.UUID, ext string) ([]byte, error) {
	path, err := s.livePath("read", id, ext)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("read", path)
		}
		return nil, ioError("read", path, err)
	}
	return data, nil
}

// Open returns a reader over a live asset. The caller must close it.
func (s *Store) Open(id uuid.UUID, ext string) (io.ReadCloser, error) {
	path, err := s.livePath("open", id, ext)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound("open", path)
		}
		return nil, ioError("open", path, err)
	}
	return f, nil
}

// DeleteLive permanently removes a live asset without passing through the
// recycle bin. It exists for uploads that were never committed to a record;
// assets that belong to user data go through MoveToRecycleOne instead.
func (s *Store) DeleteLive(id uuid.UUID, ext string) error {
	path, err := s.livePath("delete", id, ext)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound("delete", path)
		}
		return ioError("delete", path, err)
	}
	return nil
}

// Exists reports whether the live file exists. Any error while checking,
// including an invalid extension, yields false, so false does not prove
// absence. Use Stat when the difference matters.
func (s *Store) Exists(id uuid.UUID, ext string) bool {
	ok, err := s.Stat(id, ext)
	return err == nil && ok
}

// Stat reports whether the live file exists, returning an error only when
// existence could not be determined.
func (s *Store) Stat(id uuid.UUID, ext string) (bool, error) {
	path, err := s.livePath("stat", id, ext)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, ioError("stat", path, err)
	}
	return info.Mode().IsRegular(), nil
}

func (s *Store) livePath(op string, id uuid.UUID, ext string) (string, error) {
	e, err := layout.ParseExtension(ext)
	if err != nil {
		return "", fromSanitize(op, err)
	}
	return s.layout.AssetFile(id, e), nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
