// Package ingest discovers invoice files on disk, either by walking a
// directory once or by watching it for new files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// DefaultExts are the extensions picked up when none are configured.
var DefaultExts = map[string]struct{}{
	"pdf": {},
	"xml": {},
}

// DirStats summarizes a ScanDirectory walk.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}

// ParseExts turns a list like ".PDF, xml" into a lookup set; empty means DefaultExts.
func ParseExts(list []string) map[string]struct{} {
	exts := map[string]struct{}{}
	for _, e := range list {
		if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
			exts[e] = struct{}{}
		}
	}
	if len(exts) == 0 {
		return DefaultExts
	}
	return exts
}

// Allowed reports whether path has one of exts.
func Allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// ScanDirectory walks root and returns matching files in lexical order.
// Unreadable entries are counted and skipped.
func ScanDirectory(ctx context.Context, root string, exts map[string]struct{}, skipHidden bool) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	if exts == nil {
		exts = DefaultExts
	}

	var (
		paths []string
		stats DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			stats.Skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Allowed(path, exts) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return paths, stats, fmt.Errorf("walk: %w", err)
	}
	return paths, stats, nil
}
