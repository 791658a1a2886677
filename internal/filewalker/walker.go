package filewalker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/rs/zerolog/log"

	"rpy-converter/internal/parser"
)

// Walker discovers script files and pairs each with the parser for its type.
type Walker struct {
	parsers []parser.Parser
}

// NewWalker creates a Walker dispatching to the given parsers.
func NewWalker(parsers ...parser.Parser) *Walker {
	return &Walker{parsers: parsers}
}

// FileEntry represents a discovered file ready for processing.
type FileEntry struct {
	// Root is the directory the walk started from; outputs mirror Path relative to it.
	Root   string
	Path   string
	Ext    string
	Parser parser.Parser
}

// Walk returns every supported file under root, sorted by path. When root is
// a regular file it is returned alone. Inside a git work tree the root
// .gitignore is honoured and .git/ is skipped.
func (w *Walker) Walk(root string) ([]FileEntry, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		entry, ok := w.entryFor(filepath.Dir(root), root)
		if !ok {
			return nil, fmt.Errorf("unsupported file type: %s", root)
		}
		return []FileEntry{entry}, nil
	}

	matcher := loadIgnore(root)
	var entries []FileEntry

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error walking path")
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if matcher != nil && matcher.Match(strings.Split(rel, string(os.PathSeparator)), info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if entry, ok := w.entryFor(root, path); ok {
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	log.Info().Int("count", len(entries)).Str("root", root).Msg("Discovered files")
	return entries, nil
}

func (w *Walker) entryFor(root, path string) (FileEntry, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, p := range w.parsers {
		if p.CanParse(ext) {
			return FileEntry{Root: root, Path: path, Ext: ext, Parser: p}, true
		}
	}
	return FileEntry{}, false
}

// loadIgnore builds a matcher from root/.gitignore when root is a git work
// tree. It returns nil outside a work tree.
func loadIgnore(root string) gitignore.Matcher {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return nil
	}

	patterns := []gitignore.Pattern{gitignore.ParsePattern(".git/", nil)}
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
				patterns = append(patterns, gitignore.ParsePattern(line, nil))
			}
		}
	}
	return gitignore.NewMatcher(patterns)
}

// ParseFile parses a single file using its parser.
func (w *Walker) ParseFile(entry FileEntry) (*parser.ParseResult, error) {
	return entry.Parser.Parse(entry.Path)
}
