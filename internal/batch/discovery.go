// Package batch expands command-line arguments into the page images of one
// drawing set.
package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/elscan/internal/utils"
)

// ErrNoImages is returned when the arguments expand to no image files.
var ErrNoImages = errors.New("no image files found")

// Options controls directory expansion.
type Options struct {
	Recursive bool
	// Include and Exclude are filepath.Match patterns applied to base names.
	Include []string
	Exclude []string
}

// Discover resolves args to image paths in page order. Files named
// explicitly are kept in argument order unless excluded. Directories
// contribute their supported images in lexical order, descending into
// subdirectories only when Recursive is set.
func Discover(args []string, opts Options) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if !matchesAny(arg, opts.Exclude) {
				files = append(files, arg)
			}
			continue
		}
		found, err := discoverInDirectory(arg, opts)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}
	return files, nil
}

func discoverInDirectory(dir string, opts Options) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if utils.IsSupportedImage(path) && shouldInclude(path, opts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return files, nil
}

// shouldInclude applies exclude patterns first; with no include patterns
// everything else is kept.
func shouldInclude(path string, opts Options) bool {
	if matchesAny(path, opts.Exclude) {
		return false
	}
	return len(opts.Include) == 0 || matchesAny(path, opts.Include)
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
