package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindRoot finds the .sitedoc directory by walking up from dir.
func FindRoot(dir string) (string, error) {
	for {
		p := filepath.Join(dir, WorkspaceDir)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a sitedoc workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// LoadWorkspace loads the workspace configuration found from the current
// directory. A relative data_dir is resolved against the .sitedoc directory.
func LoadWorkspace() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindRoot(cwd)
	if err != nil {
		return nil, err
	}

	cfg, err := Load(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, err
	}
	cfg.root = root
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(root, cfg.DataDir)
	}
	return cfg, nil
}

// Initialize creates a .sitedoc workspace in dir with a default configuration.
// Data is kept inside the workspace directory.
func Initialize(dir, backend string) (*Config, error) {
	root := filepath.Join(dir, WorkspaceDir)

	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("sitedoc workspace already exists")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", WorkspaceDir, err)
	}

	cfg := Defaults()
	cfg.DataDir = "."
	cfg.LogFormat = "text"
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		os.RemoveAll(root)
		return nil, err
	}

	if err := cfg.Save(filepath.Join(root, ConfigFile)); err != nil {
		os.RemoveAll(root)
		return nil, err
	}

	cfg.root = root
	cfg.DataDir = root
	return cfg, nil
}

// Root returns the .sitedoc directory, or "" for configs not loaded from a workspace.
func (c *Config) Root() string {
	return c.root
}
