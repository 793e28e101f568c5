package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"qnote/internal/encryption"
	"qnote/internal/testutil"
)

func TestWriteBackup_RestoreBackup(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	if _, err := db.CreateOperation("BackupDatabase", "", testutil.FixedClock().Now()); err != nil {
		t.Fatal(err)
	}

	enc := encryption.NewTestEncryptor()
	dest := filepath.Join(t.TempDir(), "1"+BackupExt)
	if err := writeBackup(db, enc, dest); err != nil {
		t.Fatalf("writeBackup() error = %v", err)
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
	if err := writeBackup(db, enc, dest); err == nil {
		t.Error("writeBackup() over an existing backup: error = nil")
	}

	dc, err := enc.Unlock("")
	if err != nil {
		t.Fatal(err)
	}
	restored := filepath.Join(t.TempDir(), "restored.db")
	if err := RestoreBackup(dc, dest, restored); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
}

func TestRestoreBackup_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage"+BackupExt)
	if err := os.WriteFile(garbage, []byte("not a backup"), 0644); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "existing.db")
	if err := os.WriteFile(existing, nil, 0644); err != nil {
		t.Fatal(err)
	}

	dc := encryption.TestDecryptionContext{}

	if err := RestoreBackup(dc, garbage, filepath.Join(dir, "out.db")); err == nil {
		t.Error("RestoreBackup() of garbage: error = nil")
	}
	if _, err := os.Stat(filepath.Join(dir, "out.db")); !os.IsNotExist(err) {
		t.Error("failed restore left a target file")
	}
	if err := RestoreBackup(dc, garbage, existing); err == nil {
		t.Error("RestoreBackup() onto existing file: error = nil")
	}
}

func TestListBackups(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"10" + BackupExt, "9" + BackupExt, "notes.txt", "2" + BackupExt + ".partial"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ListBackups(dir)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	want := []string{filepath.Join(dir, "9"+BackupExt), filepath.Join(dir, "10"+BackupExt)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListBackups() = %v, want %v", got, want)
	}
}
