package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func artifactConfig(t *testing.T) RunConfig {
	t.Helper()
	cfg := RunConfig{
		Dir: t.TempDir(),
		Paths: Paths{
			Root:   "build",
			Temp:   "build/temp",
			Obj:    "build/temp/obj",
			Output: "build/Product_Debug",
		},
	}
	require.NoError(t, PrepareDirectories(cfg))
	return cfg
}

func readOutput(t *testing.T, cfg RunConfig, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Dir, cfg.Paths.Output, name))
	require.NoError(t, err)
	return string(data)
}

func TestCollectOptionalArtifacts(t *testing.T) {
	cfg := artifactConfig(t)
	touch(t, filepath.Join(cfg.Dir, cfg.Paths.Temp), "Game.dll", "Game.pdb", "SummerGame.exe")

	written, err := CollectArtifacts(context.Background(), cfg, ArtifactsSection{
		Optional: []string{"ImGui.dll", "Game.dll", "Game.pdb", "SummerGame.exe", "SummerGame.pdb"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Game.dll", "Game.pdb", "SummerGame.exe"}, written)
	require.Equal(t, "Game.dll", readOutput(t, cfg, "Game.dll"))
	require.NoFileExists(t, filepath.Join(cfg.Dir, cfg.Paths.Output, "ImGui.dll"))
}

func TestCollectRequiredArtifact(t *testing.T) {
	cfg := artifactConfig(t)
	a := ArtifactsSection{Required: []FileCopy{{From: "lib/x64__SDL2.dll", To: "SDL2.dll"}}}

	_, err := CollectArtifacts(context.Background(), cfg, a)
	require.ErrorIs(t, err, ErrMissingArtifact)

	touch(t, cfg.Dir, "lib/x64__SDL2.dll")
	written, err := CollectArtifacts(context.Background(), cfg, a)
	require.NoError(t, err)
	require.Equal(t, []string{"SDL2.dll"}, written)
	require.Equal(t, "lib/x64__SDL2.dll", readOutput(t, cfg, "SDL2.dll"))
	require.FileExists(t, filepath.Join(cfg.Dir, "lib", "x64__SDL2.dll"))
}

func TestCollectRelocatesStrayFiles(t *testing.T) {
	cfg := artifactConfig(t)
	a := ArtifactsSection{Relocate: []FileCopy{{From: "vc140.pdb"}}}

	written, err := CollectArtifacts(context.Background(), cfg, a)
	require.NoError(t, err)
	require.Empty(t, written)

	touch(t, filepath.Join(cfg.Dir, cfg.Paths.Output), "vc140.pdb")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dir, "vc140.pdb"), []byte("fresh"), 0o644))

	written, err = CollectArtifacts(context.Background(), cfg, a)
	require.NoError(t, err)
	require.Equal(t, []string{"vc140.pdb"}, written)
	require.Equal(t, "fresh", readOutput(t, cfg, "vc140.pdb"))
	require.NoFileExists(t, filepath.Join(cfg.Dir, "vc140.pdb"))
}

func TestCopyFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "src"), filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("older and longer"), 0o644))

	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}
