// Package vault loads per-vault configuration (<vault>/.cast/config.yaml)
// and the read-only global vault registry used to resolve peer ids to
// filesystem paths.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cast-sync/cast/internal/vfs"
)

// ConfigPath is the vault-relative location of the vault config file.
const ConfigPath = ".cast/config.yaml"

// ErrConfig wraps any problem loading or validating a vault or global
// config. The orchestrator treats this as fatal and aborts before any
// write.
var ErrConfig = errors.New("config error")

// IndexConfig holds the selector's include/exclude glob lists.
type IndexConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Config is the parsed contents of <vault>/.cast/config.yaml.
type Config struct {
	CastVersion string      `yaml:"cast-version"`
	Vault       VaultFields `yaml:"vault"`
	Index       IndexConfig `yaml:"index"`

	// Root is the vault's filesystem root: the directory config.yaml's
	// parent .cast lives in, unless Vault.Root overrides it.
	Root string `yaml:"-"`
}

// VaultFields holds the vault.* config keys.
type VaultFields struct {
	ID   string `yaml:"id"`
	Root string `yaml:"root,omitempty"`
}

// LoadConfig reads and validates <root>/.cast/config.yaml through fsys, so
// fault-injection (vfs.Chaos) exercises config loading the same way it does
// every other on-disk read in the engine.
func LoadConfig(fsys vfs.FS, root string) (*Config, error) {
	path := filepath.Join(root, filepath.FromSlash(ConfigPath))

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}

	if cfg.CastVersion != "1" {
		return nil, fmt.Errorf("%w: %s: unsupported cast-version %q", ErrConfig, path, cfg.CastVersion)
	}

	if cfg.Vault.ID == "" {
		return nil, fmt.Errorf("%w: %s: vault.id is required", ErrConfig, path)
	}

	cfg.Root = root
	if cfg.Vault.Root != "" {
		cfg.Root = cfg.Vault.Root
	}

	return &cfg, nil
}

// Registry is the read-only global mapping from vault id to filesystem
// path, loaded from $XDG_CONFIG_HOME/cast/vaults.yaml or
// ~/.config/cast/vaults.yaml. It lets the orchestrator resolve peer ids
// named in a driving vault's reconciliation request to actual paths.
type Registry struct {
	Vaults map[string]string `yaml:"vaults"`
}

// GlobalConfigPath returns the path to the global registry file, honoring
// XDG_CONFIG_HOME when set.
func GlobalConfigPath(env func(string) string) string {
	if dir := env("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "cast", "vaults.yaml")
	}

	return filepath.Join(env("HOME"), ".config", "cast", "vaults.yaml")
}

// LoadRegistry reads the global vault registry. A missing file is not an
// error: it returns an empty Registry, since not every deployment needs a
// global registry (explicit paths can be passed directly to sync_all).
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{Vaults: map[string]string{}}, nil
		}

		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}

	if reg.Vaults == nil {
		reg.Vaults = map[string]string{}
	}

	return &reg, nil
}

// Resolve looks up id in the registry, returning ErrConfig if absent.
func (r *Registry) Resolve(id string) (string, error) {
	path, ok := r.Vaults[id]
	if !ok {
		return "", fmt.Errorf("%w: unknown vault id %q", ErrConfig, id)
	}

	return path, nil
}
