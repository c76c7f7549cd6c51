// walkDir underlies grep/find/ls: it walks a directory tree skipping
// .git and anything a .gitignore along the way excludes, grounded on
// common/walk_directory.go's IgnoreManager/WalkCodeDirectory (trimmed to
// .gitignore only — the teacher's additional .ignore/.sideignore
// precedence layers aren't part of any SPEC_FULL.md tool contract).
package builtin

import (
	"io/fs"
	"os"
	"path/filepath"

	gitignore "github.com/denormal/go-gitignore"
)

type ignoreSet struct {
	dir    string
	ignore gitignore.GitIgnore
}

func collectIgnores(root string) []ignoreSet {
	var sets []ignoreSet
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return nil
		}
		if entry.Name() == ".git" {
			return filepath.SkipDir
		}
		if _, statErr := os.Stat(filepath.Join(path, ".gitignore")); statErr == nil {
			if gi, giErr := gitignore.NewRepositoryWithFile(path, ".gitignore"); giErr == nil {
				sets = append(sets, ignoreSet{dir: path, ignore: gi})
			}
		}
		return nil
	})
	return sets
}

func isIgnored(sets []ignoreSet, path string, isDir bool) bool {
	for i := len(sets) - 1; i >= 0; i-- {
		match := sets[i].ignore.Absolute(path, isDir)
		if match != nil {
			return match.Ignore()
		}
	}
	return false
}

// walkDir walks root depth-first, skipping .git and any .gitignore-excluded
// path, calling visit for every remaining file and directory.
func walkDir(root string, visit func(path string, entry fs.DirEntry) error) error {
	sets := collectIgnores(root)
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if entry.IsDir() && entry.Name() == ".git" {
			return filepath.SkipDir
		}
		if isIgnored(sets, path, entry.IsDir()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return visit(path, entry)
	})
}
