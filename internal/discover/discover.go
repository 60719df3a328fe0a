// Package discover finds the source files to analyse.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/layerguard/internal/lang"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to root, slash-separated
	Language string
}

// Options selects which files are discovered.
type Options struct {
	// Paths are the files or directories to search, relative to root.
	// Empty means root itself.
	Paths []string
	// Exclude drops files whose root-relative path matches any pattern.
	Exclude []*regexp.Regexp
	// Languages limits discovery to these languages when non-empty.
	Languages []string
}

var skipDirs = map[string]struct{}{
	"node_modules":      {},
	".git":              {},
	".hg":               {},
	".svn":              {},
	".idea":             {},
	".layerguard.cache": {},
}

// Files discovers parseable source files below root. The result is sorted
// by path, which is the discovery order every later stage relies on.
func Files(root string, opts Options) ([]FileEntry, error) {
	langSet := make(map[string]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[l] = struct{}{}
	}
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	paths := opts.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}

	seen := make(map[string]struct{})
	var results []FileEntry

	visit := func(path string, d os.DirEntry) error {
		name := d.Name()

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || (strings.HasPrefix(name, ".") && name != "." && name != "..") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		for _, re := range opts.Exclude {
			if re.MatchString(rel) {
				return nil
			}
		}

		langName := lang.ForExtension(filepath.Ext(name))
		if langName == "" {
			return nil
		}
		if len(langSet) > 0 {
			if _, ok := langSet[langName]; !ok {
				return nil
			}
		}

		if _, dup := seen[rel]; dup {
			return nil
		}
		seen[rel] = struct{}{}
		results = append(results, FileEntry{Path: rel, Language: langName})
		return nil
	}

	for _, p := range paths {
		start := p
		if !filepath.IsAbs(start) {
			start = filepath.Join(root, p)
		}
		info, err := os.Stat(start)
		if err != nil {
			return nil, fmt.Errorf("path %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := visit(start, fileDirEntry{info}); err != nil && err != filepath.SkipDir {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(start, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip errors
			}
			if path == start && d.IsDir() {
				return nil
			}
			return visit(path, d)
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// fileDirEntry adapts a FileInfo for paths given directly as files.
type fileDirEntry struct {
	os.FileInfo
}

func (e fileDirEntry) Type() os.FileMode          { return e.Mode().Type() }
func (e fileDirEntry) Info() (os.FileInfo, error) { return e.FileInfo, nil }

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
