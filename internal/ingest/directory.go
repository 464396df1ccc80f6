package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

// ScanDirectory walks root and returns the files with an allowed extension,
// sorted. Hidden files and directories are skipped when skipHidden is set.
// Unreadable entries are counted as failed and the walk continues.
func ScanDirectory(root string, skipHidden bool) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var paths []string
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			stats.Skipped++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !AllowedExt(filepath.Ext(path)) {
			stats.Skipped++
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return paths, stats, fmt.Errorf("walk: %w", err)
	}
	sort.Strings(paths)
	return paths, stats, nil
}

// ExpandPaths turns a mix of files and directories into a file list.
// Explicit files are kept even when hidden; their extension still has to be
// allowed.
func ExpandPaths(args []string, skipHidden bool) ([]string, DirStats, error) {
	var out []string
	var total DirStats
	for _, a := range args {
		st, err := os.Stat(a)
		if err != nil {
			return nil, total, err
		}
		if !st.IsDir() {
			total.Scanned++
			if !AllowedExt(constants.NormalizeExt(filepath.Ext(a))) {
				total.Skipped++
				continue
			}
			total.Matched++
			out = append(out, a)
			continue
		}
		paths, stats, err := ScanDirectory(a, skipHidden)
		if err != nil {
			return nil, total, err
		}
		out = append(out, paths...)
		total.Scanned += stats.Scanned
		total.Matched += stats.Matched
		total.Skipped += stats.Skipped
		total.Failed += stats.Failed
	}
	return out, total, nil
}
