// Package layout maps asset identifiers and logical days to paths under a
// storage root.
//
// The directory structure under the root is:
//
//	<root>/
//	  assets/
//	    <b1>/<b2>/<hex>.<ext>     (live assets, b1/b2 = first two hex pairs)
//	  garbages/
//	    <day>/<hex>.<ext>         (recycled assets, day = logical day number)
//
// Every path component is either a fixed literal, hex digits, a decimal day
// number or a sanitized Extension, so no returned path can leave the root.
package layout

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"qnote/internal/logicalday"
	"qnote/internal/pathsafe"
)

const (
	assetsDirName   = "assets"
	garbagesDirName = "garbages"
)

// Extension is a file extension (without the dot) that has passed
// pathsafe.Sanitize. The zero value means "no extension".
type Extension struct {
	s string
}

// NoExtension is the empty extension.
var NoExtension = Extension{}

// ParseExtension sanitizes s and returns it as an Extension. The empty
// string is accepted and yields NoExtension.
func ParseExtension(s string) (Extension, error) {
	if s == "" {
		return NoExtension, nil
	}
	safe, err := pathsafe.Sanitize(s)
	if err != nil {
		return NoExtension, err
	}
	return Extension{s: safe}, nil
}

// String returns the extension without a leading dot.
func (e Extension) String() string { return e.s }

// IsEmpty reports whether this is NoExtension.
func (e Extension) IsEmpty() bool { return e.s == "" }

// ExtensionOf returns the lower-cased extension of the last element of path,
// without the dot, or "" if it has none. The result is not sanitized.
func ExtensionOf(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Hex returns the 32 character lowercase hex form of id, without dashes.
func Hex(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

// FileName returns the on-disk name of an asset: "<hex>.<ext>", or "<hex>"
// when ext is empty.
func FileName(id uuid.UUID, ext Extension) string {
	if ext.IsEmpty() {
		return Hex(id)
	}
	return Hex(id) + "." + ext.s
}

// Layout computes paths under a single storage root. It holds no other
// state and all methods are pure.
type Layout struct {
	root string
}

// New returns a Layout for root. root is cleaned but not made absolute.
func New(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

// Root returns the storage root.
func (l Layout) Root() string { return l.root }

// AssetsDir returns <root>/assets.
func (l Layout) AssetsDir() string { return filepath.Join(l.root, assetsDirName) }

// GarbagesDir returns <root>/garbages.
func (l Layout) GarbagesDir() string { return filepath.Join(l.root, garbagesDirName) }

// AssetDir returns the bucketed directory holding the live asset id.
func (l Layout) AssetDir(id uuid.UUID) string {
	h := Hex(id)
	return filepath.Join(l.AssetsDir(), h[0:2], h[2:4])
}

// AssetFile returns the live path of asset id.
func (l Layout) AssetFile(id uuid.UUID, ext Extension) string {
	return filepath.Join(l.AssetDir(id), FileName(id, ext))
}

// GarbageDir returns the recycle-bin directory for day.
func (l Layout) GarbageDir(day logicalday.Day) string {
	return filepath.Join(l.GarbagesDir(), day.String())
}

// GarbageFile returns the path of asset id recycled on day.
func (l Layout) GarbageFile(id uuid.UUID, ext Extension, day logicalday.Day) string {
	return filepath.Join(l.GarbageDir(day), FileName(id, ext))
}

// Rel returns abs relative to the root, slash separated. It fails if abs is
// not inside the root.
func (l Layout) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", fmt.Errorf("relativizing %s: %w", abs, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside storage root %s", abs, l.root)
	}
	return filepath.ToSlash(rel), nil
}

// Resolve turns a root-relative path (as returned by Rel) back into a path
// under the root. Absolute paths and paths with ".." components are
// rejected with a pathsafe PathTraversal error.
func (l Layout) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", &pathsafe.Error{Kind: pathsafe.Empty, Input: rel}
	}
	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) || strings.HasPrefix(rel, "/") || filepath.VolumeName(native) != "" {
		return "", &pathsafe.Error{Kind: pathsafe.PathTraversal, Input: rel}
	}
	for _, part := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return "", &pathsafe.Error{Kind: pathsafe.PathTraversal, Input: rel}
		}
	}
	return filepath.Join(l.root, native), nil
}
