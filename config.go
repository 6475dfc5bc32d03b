package juliagate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// BridgeConfig holds settings for locating and launching Julia.
// Values are layered: built-in defaults, then an optional YAML file,
// then JULIAGATE_* environment variables.
type BridgeConfig struct {
	// EnvName is the name of the managed environment under RootDir.
	EnvName string `koanf:"env_name"`

	// RootDir is the base directory for juliaup, depots and project dirs.
	// Defaults to ~/.juliagate.
	RootDir string `koanf:"root_dir"`

	// JuliaVersion is the Julia version to install for managed environments.
	JuliaVersion string `koanf:"julia_version"`

	// JuliaPath optionally points at an existing julia binary. When set,
	// the environment is created from that executable instead of juliaup.
	JuliaPath string `koanf:"julia_path"`

	// ProjectPath optionally overrides the Julia project directory.
	ProjectPath string `koanf:"project_path"`

	// StartupTimeout bounds how long to wait for a child process to report
	// its started status.
	StartupTimeout time.Duration `koanf:"startup_timeout"`

	// CallTimeout is the default timeout for queue calls, in seconds.
	CallTimeout int `koanf:"call_timeout"`
}

func defaultConfigMap() map[string]interface{} {
	home, _ := os.UserHomeDir()
	return map[string]interface{}{
		"env_name":        "juliagate",
		"root_dir":        home + string(os.PathSeparator) + ".juliagate",
		"julia_version":   "1.10",
		"julia_path":      "",
		"project_path":    "",
		"startup_timeout": "60s",
		"call_timeout":    30,
	}
}

// LoadConfig loads the bridge configuration. configFile may be empty, in
// which case juliagate.yaml / juliagate.yml in the working directory are
// tried; a missing file is not an error. Environment variables prefixed
// with JULIAGATE_ override file values (JULIAGATE_ROOT_DIR -> root_dir).
func LoadConfig(configFile string) (*BridgeConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultConfigMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	candidates := []string{configFile}
	if configFile == "" {
		candidates = []string{"juliagate.yaml", "juliagate.yml"}
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if configFile != "" {
				return nil, fmt.Errorf("config file %s: %w", path, err)
			}
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		break
	}

	if err := k.Load(env.Provider("JULIAGATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "JULIAGATE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg BridgeConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// NewEnvironment creates or reuses a Julia environment according to the
// configuration. A configured JuliaPath takes precedence over a managed
// juliaup installation.
func (cfg *BridgeConfig) NewEnvironment(progressCallback ProgressCallback) (*JuliaEnvironment, error) {
	if cfg.JuliaPath != "" {
		env, err := CreateEnvironmentFromExecutable(cfg.JuliaPath)
		if err != nil {
			return nil, err
		}
		env.StartupTimeout = cfg.StartupTimeout
		return env, nil
	}
	env, err := CreateEnvironmentJuliaup(cfg.EnvName, cfg.RootDir, cfg.JuliaVersion, "", progressCallback)
	if err != nil {
		return nil, err
	}
	env.StartupTimeout = cfg.StartupTimeout
	if cfg.ProjectPath != "" {
		env.ProjectPath = cfg.ProjectPath
	}
	if env.IsNew {
		if err := env.EnsureBridgePackages(progressCallback); err != nil {
			return nil, err
		}
	}
	return env, nil
}
