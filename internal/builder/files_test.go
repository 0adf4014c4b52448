package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qobs-build/rbuild/internal/task"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	}
}

func TestExpandSources(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "main.c", "src/a.c", "src/b.c", "src/sub/c.c", "src/notes.txt")

	files, err := expandSources(dir, []string{"missing.c", "src/**/*.c", "main.c"})
	require.NoError(t, err)
	require.Len(t, files, 5)
	require.Equal(t, "missing.c", files[0])
	require.ElementsMatch(t, []string{"src/a.c", "src/b.c", "src/sub/c.c"}, files[1:4])
	require.Equal(t, "main.c", files[4])
}

func TestExpandSourcesErrors(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "src/a.c")

	_, err := expandSources(dir, []string{"src/*.cpp"})
	require.ErrorContains(t, err, "matched no files")

	_, err = expandSources(dir, []string{filepath.Join(dir, "src", "*.c")})
	require.ErrorContains(t, err, "must be relative")

	files, err := expandSources(dir, nil)
	require.NoError(t, err)
	require.Nil(t, files)
}

func TestManifestExpandSources(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "src/game.c", "src/late/x.c", "meta/m.cpp")

	m := &Manifest{Modules: []Module{{
		Name: "Game",
		Task: task.Task{
			Sources:  []string{"src/*.c"},
			Deferred: []string{"src/late/*.c"},
		},
		Metaprogram: &task.Task{Sources: []string{"meta/*.cpp"}},
	}}}
	require.NoError(t, m.ExpandSources(dir))

	mod := m.Modules[0]
	require.Equal(t, []string{"src/game.c"}, mod.Sources)
	require.Equal(t, []string{"src/late/x.c"}, mod.Deferred)
	require.Equal(t, []string{"meta/m.cpp"}, mod.Metaprogram.Sources)
}
