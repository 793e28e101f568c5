package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"qnote/internal/database"
	"qnote/internal/qn"
)

// BackupExt is the suffix of database backup files: a zstd-compressed
// SQLite snapshot, encrypted with age.
const BackupExt = ".db.zst.age"

// writeBackup snapshots db, compresses the snapshot and encrypts it into
// dest. dest is written under a temporary name and renamed into place, so a
// failed backup never leaves a partial file behind.
func writeBackup(db qn.Database, enc qn.Encryptor, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup %s already exists", dest)
	}

	tmpDir, err := os.MkdirTemp("", "qnote-backup-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if err := db.BackupTo(snapshot); err != nil {
		return err
	}

	compressed := filepath.Join(tmpDir, "snapshot.db.zst")
	if err := compressFile(snapshot, compressed); err != nil {
		return err
	}

	in, err := os.Open(compressed)
	if err != nil {
		return fmt.Errorf("opening compressed snapshot: %w", err)
	}
	defer in.Close()

	partial := dest + ".partial"
	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		os.Remove(partial)
		return fmt.Errorf("encrypting backup: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("closing backup file: %w", err)
	}
	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return fmt.Errorf("finalizing backup: %w", err)
	}
	return nil
}

func compressFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating compressed snapshot: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		return fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing compressed snapshot: %w", err)
	}
	return out.Close()
}

// RestoreBackup decrypts and decompresses the backup at src into a new
// database file at dest. dest must not exist. The restored database is
// opened once to check that its schema is current.
func RestoreBackup(dc qn.DecryptionContext, src, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("restore target %s already exists", dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking restore target: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening backup: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp("", "qnote-restore-*.zst")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := dc.Decrypt(in, tmp); err != nil {
		return fmt.Errorf("decrypting backup: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding decrypted backup: %w", err)
	}

	if err := decompressTo(tmp, dest); err != nil {
		os.Remove(dest)
		return err
	}

	if err := checkRestored(dest); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

func checkRestored(path string) error {
	db, err := database.NewSQLiteDatabase(path)
	if err != nil {
		return fmt.Errorf("opening restored database: %w", err)
	}
	defer db.Close()
	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("restored database: %w", err)
	}
	return nil
}

func decompressTo(r io.Reader, dest string) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating restore target: %w", err)
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		return fmt.Errorf("decompressing backup: %w", err)
	}
	return out.Close()
}

// ListBackups returns the backup files in dir, oldest first.
func ListBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading backups directory: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), BackupExt) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(backups, func(i, j int) bool {
		return backupSeq(backups[i]) < backupSeq(backups[j])
	})
	return backups, nil
}

// backupSeq extracts the operation id a backup file is named after. Names
// that do not parse sort first.
func backupSeq(path string) int64 {
	var id int64
	if _, err := fmt.Sscanf(strings.TrimSuffix(filepath.Base(path), BackupExt), "%d", &id); err != nil {
		return -1
	}
	return id
}
