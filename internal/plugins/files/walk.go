package files

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/monochromegane/go-gitignore"
)

// skippedDirs are never descended into
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// Walk calls fn for every file and directory below root, root excluded.
// Hidden and vendored directories are skipped, as is everything matched by
// root/.gitignore. maxDepth <= 0 means unlimited. An error from fn stops the walk.
func Walk(ctx context.Context, root string, maxDepth int, fn func(rel string, isDir bool) error) error {
	var ignoreMatcher gitignore.IgnoreMatcher

	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		ignoreMatcher, _ = gitignore.NewGitIgnore(gitignorePath)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Skip unreadable entries to keep partial results
			if path == root {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() && (strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()]) {
			return filepath.SkipDir
		}
		if ignoreMatcher != nil && ignoreMatcher.Match(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if err := fn(relPath, d.IsDir()); err != nil {
			return err
		}

		if d.IsDir() && maxDepth > 0 && strings.Count(relPath, string(filepath.Separator))+1 >= maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
}
