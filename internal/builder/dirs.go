package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

const runRecordFilename = "run.toml"

var errUnsafeStaging = errors.New("staging directory must be inside the build root")

// PrepareDirectories leaves the build tree in the state a fresh run expects:
// root present, staging and its object directory empty, output present. Any
// failure aborts before a stage runs.
func PrepareDirectories(cfg RunConfig) error {
	root := cfg.resolve(cfg.Paths.Root)
	temp := cfg.resolve(cfg.Paths.Temp)

	rel, err := filepath.Rel(root, temp)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", errUnsafeStaging, temp)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create build root: %w", err)
	}
	if err := os.RemoveAll(temp); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	for _, dir := range []string{temp, cfg.resolve(cfg.Paths.Obj), cfg.resolve(cfg.Paths.Output)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}

// RunRecord is written into staging at the start of every run
type RunRecord struct {
	ID      string    `toml:"id"`
	Product string    `toml:"product"`
	Mode    string    `toml:"mode"`
	Version string    `toml:"version"`
	Started time.Time `toml:"started"`
	Modules []string  `toml:"modules"`
}

func writeRunRecord(cfg RunConfig, modules []string, started time.Time) (RunRecord, error) {
	rec := RunRecord{
		ID:      uuid.NewString(),
		Product: cfg.Product,
		Mode:    cfg.Mode.String(),
		Version: cfg.Version,
		Started: started,
		Modules: modules,
	}
	data, err := toml.Marshal(rec)
	if err != nil {
		return rec, err
	}
	path := filepath.Join(cfg.resolve(cfg.Paths.Temp), runRecordFilename)
	return rec, os.WriteFile(path, data, 0o644)
}
