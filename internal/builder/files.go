package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// expandSources replaces glob patterns with their matches, in place. Literal
// paths are kept verbatim even when missing; the compiler reports those.
func expandSources(basedir string, patterns []string) ([]string, error) {
	if patterns == nil {
		return nil, nil
	}
	fsys := os.DirFS(basedir)

	files := make([]string, 0, len(patterns))
	for _, pat := range patterns {
		if !isGlob(pat) {
			files = append(files, pat)
			continue
		}
		if filepath.IsAbs(pat) {
			return nil, fmt.Errorf("glob %q must be relative to %s", pat, basedir)
		}
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pat), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("while globbing %s: %w", pat, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob %q matched no files in %s", pat, basedir)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// ExpandSources resolves source globs of every module against basedir
func (m *Manifest) ExpandSources(basedir string) error {
	for i := range m.Modules {
		mod := &m.Modules[i]
		var err error
		if mod.Sources, err = expandSources(basedir, mod.Sources); err != nil {
			return fmt.Errorf("module %q: %w", mod.Name, err)
		}
		if mod.Deferred, err = expandSources(basedir, mod.Deferred); err != nil {
			return fmt.Errorf("module %q: %w", mod.Name, err)
		}
		if mod.Metaprogram != nil {
			if mod.Metaprogram.Sources, err = expandSources(basedir, mod.Metaprogram.Sources); err != nil {
				return fmt.Errorf("module %q metaprogram: %w", mod.Name, err)
			}
		}
	}
	return nil
}
