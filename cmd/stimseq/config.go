package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spboyer/stimseq/internal/models"
	"github.com/spboyer/stimseq/internal/projectconfig"
	"github.com/spboyer/stimseq/internal/validation"
)

// loadProjectConfig finds .stimseq.yaml above startDir, validates it against
// the schema and merges it onto the defaults. A missing file is not an error.
func loadProjectConfig(startDir string) (*projectconfig.ProjectConfig, error) {
	path, err := projectconfig.Find(startDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, &models.ConfigError{Source: projectconfig.FileName, Err: err}
	default:
		problems, err := validation.ValidateConfigFile(path)
		if err != nil {
			return nil, &models.ConfigError{Source: path, Err: err}
		}
		if len(problems) > 0 {
			return nil, models.NewConfigError(path, problems...)
		}
	}

	cfg, err := projectconfig.Load(startDir)
	if err != nil {
		return nil, &models.ConfigError{Source: projectconfig.FileName, Err: err}
	}
	return cfg, nil
}

// resolveCatalog returns name as given when it exists, otherwise looks for it
// in the configured catalogs directory.
func resolveCatalog(cfg *projectconfig.ProjectConfig, name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	if !filepath.IsAbs(name) {
		candidate := filepath.Join(cfg.Resolve(cfg.Paths.Catalogs), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", models.NewConfigError(name, fmt.Sprintf("catalog %s not found", name))
}

// ensureDir creates dir when it is set and returns it unchanged.
func ensureDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}
