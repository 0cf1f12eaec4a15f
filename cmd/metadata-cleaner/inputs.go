package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"metadata-cleaner/internal/config"
)

// collectInputs turns command-line arguments into the ordered list of files to
// clean. Directories are walked recursively and filtered by the configured
// extensions; output folders are skipped. Duplicates keep their first position.
func collectInputs(args []string, cfg *config.Config) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", arg, err)
		}

		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			// Missing or unreadable files still go through the batch so they
			// get a per-file failure instead of aborting the run.
			add(abs)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != abs && d.Name() == cfg.DefaultSubfolder {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && cfg.IsSupportedExtension(filepath.Ext(path)) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
	}

	return files, nil
}
