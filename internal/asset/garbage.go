package asset

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"qnote/internal/layout"
	"qnote/internal/logicalday"
)

// GarbageEntry describes one recycled file as seen by a single scan.
type GarbageEntry struct {
	Path    string // relative to the storage root, slash separated
	Size    int64
	ModTime time.Time
	// Day comes from the name of the containing directory, never from
	// ModTime, so it does not drift between scans.
	Day logicalday.Day
}

// DayCount is one bucket of GarbageStats.CountByDay.
type DayCount struct {
	Day   logicalday.Day
	Count int
}

// GarbageStats aggregates a scan of the recycle bin.
type GarbageStats struct {
	FileCount  int
	TotalSize  int64
	CountByDay []DayCount // ascending by Day
}

// GarbageManager scans and purges the recycle bin. The state of a recycled
// asset lives entirely in its directory; the manager keeps nothing in memory
// between calls.
//
// Purging is irreversible and never happens implicitly: CleanupBefore and
// CleanupDay must only be called after the user confirmed it.
type GarbageManager struct {
	layout layout.Layout
}

// NewGarbageManager creates a GarbageManager for the recycle bin of l.
func NewGarbageManager(l layout.Layout) *GarbageManager {
	return &GarbageManager{layout: l}
}

// errStopWalk ends a Walk early without reporting an error.
var errStopWalk = errors.New("stop walk")

// Walk calls fn for every recycled file, in ascending day order and by file
// name within a day. Only one day directory is listed at a time. A missing
// recycle root yields no entries. A day directory whose name is not a
// canonical day number aborts the walk with ErrMalformedTree. If fn returns
// an error the walk stops and returns it.
func (g *GarbageManager) Walk(fn func(GarbageEntry) error) error {
	err := g.walk(fn)
	if errors.Is(err, errStopWalk) {
		return nil
	}
	return err
}

func (g *GarbageManager) walk(fn func(GarbageEntry) error) error {
	days, err := g.days()
	if err != nil {
		return err
	}

	for _, day := range days {
		if err := g.walkDay(day, fn); err != nil {
			return err
		}
	}
	return nil
}

// days lists and validates the day directories, ascending.
func (g *GarbageManager) days() ([]logicalday.Day, error) {
	root := g.layout.GarbagesDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ioError("scan", root, err)
	}

	var days []logicalday.Day
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := logicalday.ParseDay(e.Name())
		if err != nil {
			return nil, malformedTree(filepath.Join(root, e.Name()), err)
		}
		if day.String() != e.Name() {
			return nil, malformedTree(filepath.Join(root, e.Name()), errors.New("non-canonical day number"))
		}
		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func (g *GarbageManager) walkDay(day logicalday.Day, fn func(GarbageEntry) error) error {
	dir := g.layout.GarbageDir(day)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return ioError("scan", dir, err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return ioError("scan", filepath.Join(dir, e.Name()), err)
		}
		rel, err := g.layout.Rel(filepath.Join(dir, e.Name()))
		if err != nil {
			return ioError("scan", filepath.Join(dir, e.Name()), err)
		}
		entry := GarbageEntry{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Day:     day,
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Scan returns every recycled file. Prefer Walk for large bins.
func (g *GarbageManager) Scan() ([]GarbageEntry, error) {
	var entries []GarbageEntry
	err := g.Walk(func(e GarbageEntry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats aggregates a scan into totals and a per-day histogram.
func (g *GarbageManager) Stats() (GarbageStats, error) {
	var stats GarbageStats
	err := g.Walk(func(e GarbageEntry) error {
		stats.FileCount++
		stats.TotalSize += e.Size
		// Walk is day-ordered, so a new day always comes last.
		if n := len(stats.CountByDay); n == 0 || stats.CountByDay[n-1].Day != e.Day {
			stats.CountByDay = append(stats.CountByDay, DayCount{Day: e.Day})
		}
		stats.CountByDay[len(stats.CountByDay)-1].Count++
		return nil
	})
	if err != nil {
		return GarbageStats{}, err
	}
	return stats, nil
}

// MaxKeepDays is the largest retention window a Day can express.
const MaxKeepDays = math.MaxInt32

// ExpiryThreshold returns the first day that is still kept when keeping
// keepDays days before current. The subtraction is done in 64 bits and
// clamped to the Day range, so a huge keepDays keeps everything.
func ExpiryThreshold(keepDays int, current logicalday.Day) logicalday.Day {
	t := int64(current) - int64(keepDays)
	switch {
	case t < math.MinInt32:
		return math.MinInt32
	case t > math.MaxInt32:
		return math.MaxInt32
	}
	return logicalday.Day(t)
}

// CheckExpiration lists the entries older than the retention window:
// those whose day is strictly less than current - keepDays. It does not
// modify anything.
func (g *GarbageManager) CheckExpiration(keepDays int, current logicalday.Day) ([]GarbageEntry, error) {
	return g.EntriesBefore(ExpiryThreshold(keepDays, current))
}

// EntriesBefore lists the entries whose day is strictly less than threshold.
func (g *GarbageManager) EntriesBefore(threshold logicalday.Day) ([]GarbageEntry, error) {
	var expired []GarbageEntry
	err := g.Walk(func(e GarbageEntry) error {
		if e.Day >= threshold {
			return errStopWalk
		}
		expired = append(expired, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// ExpiredSize sums the sizes of the entries CheckExpiration would return.
func (g *GarbageManager) ExpiredSize(keepDays int, current logicalday.Day) (int64, error) {
	threshold := ExpiryThreshold(keepDays, current)

	var total int64
	err := g.Walk(func(e GarbageEntry) error {
		if e.Day >= threshold {
			return errStopWalk
		}
		total += e.Size
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// CleanupBefore permanently deletes every recycled file whose day is
// strictly less than threshold, then removes day directories left empty.
// It stops at the first error; the paths deleted until then are returned
// along with it.
func (g *GarbageManager) CleanupBefore(threshold logicalday.Day) ([]string, error) {
	var deleted []string
	err := g.Walk(func(e GarbageEntry) error {
		if e.Day >= threshold {
			return errStopWalk
		}
		if err := g.remove(e); err != nil {
			return err
		}
		deleted = append(deleted, e.Path)
		return nil
	})
	if err != nil {
		return deleted, err
	}

	if err := g.removeEmptyDayDirs(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// CleanupDay permanently deletes every file recycled on day and removes the
// day directory if it is then empty. Other days are not listed.
func (g *GarbageManager) CleanupDay(day logicalday.Day) ([]string, error) {
	var deleted []string
	err := g.walkDay(day, func(e GarbageEntry) error {
		if err := g.remove(e); err != nil {
			return err
		}
		deleted = append(deleted, e.Path)
		return nil
	})
	if err != nil {
		return deleted, err
	}

	if err := removeIfEmpty(g.layout.GarbageDir(day)); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (g *GarbageManager) remove(e GarbageEntry) error {
	abs, err := g.layout.Resolve(e.Path)
	if err != nil {
		return fromSanitize("cleanup", err)
	}
	if err := os.Remove(abs); err != nil {
		return ioError("cleanup", abs, err)
	}
	return nil
}

func (g *GarbageManager) removeEmptyDayDirs() error {
	root := g.layout.GarbagesDir()
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return ioError("cleanup", root, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := removeIfEmpty(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func removeIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return ioError("cleanup", dir, err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil {
		return ioError("cleanup", dir, err)
	}
	return nil
}
