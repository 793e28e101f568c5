// Package dataroot prepares the data root directory: the fixed directory
// skeleton, the instance descriptor and the location of the record database.
package dataroot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"qnote/internal/layout"
)

const (
	// InstanceFileName is the instance descriptor inside the data root.
	InstanceFileName = ".instance.toml"
	// DatabaseFileName is the record database inside the data root.
	DatabaseFileName = "qnote.db"

	backupsDirName = "backups"

	instanceVersion    = 1
	assetLayoutVersion = 1
)

// ErrInvalidStructure means the instance descriptor exists but cannot
// describe a usable data root.
var ErrInvalidStructure = errors.New("invalid data root structure")

// Clock supplies the creation time of new instance descriptors.
type Clock interface {
	Now() time.Time
}

// Instance is the content of the instance descriptor.
type Instance struct {
	InstanceVersion    int   `toml:"instance_version"`
	SchemaVersion      int   `toml:"schema_version"`
	AssetLayoutVersion int   `toml:"asset_layout_version"`
	CreatedAt          int64 `toml:"created_at"` // unix seconds
}

// Context holds the resolved locations inside an initialized data root.
type Context struct {
	Root       string
	AssetsDir  string
	GarbageDir string
	BackupsDir string
	DBPath     string
	Instance   Instance
}

// Layout returns the storage layout for this root.
func (c *Context) Layout() layout.Layout {
	return layout.New(c.Root)
}

// Init creates any missing directories under root and writes the instance
// descriptor if there is none. An existing descriptor is validated instead;
// Init never rewrites it. schemaVersion is recorded in new descriptors.
// Calling Init again on an initialized root changes nothing.
func Init(root string, schemaVersion int, clock Clock) (*Context, error) {
	if root == "" {
		return nil, fmt.Errorf("data root is empty")
	}
	root = filepath.Clean(root)
	l := layout.New(root)

	ctx := &Context{
		Root:       root,
		AssetsDir:  l.AssetsDir(),
		GarbageDir: l.GarbagesDir(),
		BackupsDir: filepath.Join(root, backupsDirName),
		DBPath:     filepath.Join(root, DatabaseFileName),
	}

	for _, dir := range []string{root, ctx.AssetsDir, ctx.GarbageDir, ctx.BackupsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	inst, err := initInstance(filepath.Join(root, InstanceFileName), schemaVersion, clock)
	if err != nil {
		return nil, err
	}
	ctx.Instance = *inst

	return ctx, nil
}

func initInstance(path string, schemaVersion int, clock Clock) (*Instance, error) {
	inst, err := ReadInstance(path)
	if err == nil {
		if err := inst.Validate(); err != nil {
			return nil, err
		}
		return inst, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	inst = &Instance{
		InstanceVersion:    instanceVersion,
		SchemaVersion:      schemaVersion,
		AssetLayoutVersion: assetLayoutVersion,
		CreatedAt:          clock.Now().Unix(),
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if err := writeInstance(path, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Validate rejects descriptors with missing versions or creation time, and
// layouts newer than this binary understands.
func (i *Instance) Validate() error {
	switch {
	case i.InstanceVersion < 1:
		return fmt.Errorf("%w: instance_version %d", ErrInvalidStructure, i.InstanceVersion)
	case i.SchemaVersion < 1:
		return fmt.Errorf("%w: schema_version %d", ErrInvalidStructure, i.SchemaVersion)
	case i.AssetLayoutVersion < 1:
		return fmt.Errorf("%w: asset_layout_version %d", ErrInvalidStructure, i.AssetLayoutVersion)
	case i.AssetLayoutVersion > assetLayoutVersion:
		return fmt.Errorf("%w: asset_layout_version %d is newer than supported version %d",
			ErrInvalidStructure, i.AssetLayoutVersion, assetLayoutVersion)
	case i.CreatedAt <= 0:
		return fmt.Errorf("%w: created_at %d", ErrInvalidStructure, i.CreatedAt)
	}
	return nil
}

// ReadInstance decodes the descriptor at path. A missing file is reported
// with an error matching fs.ErrNotExist.
func ReadInstance(path string) (*Instance, error) {
	var inst Instance
	if _, err := toml.DecodeFile(path, &inst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidStructure, path, err)
	}
	return &inst, nil
}

func writeInstance(path string, inst *Instance) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating instance file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(inst); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing instance file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing instance file: %w", err)
	}
	return nil
}
