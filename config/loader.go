package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader loads Settings from a layered set of sources: built-in defaults,
// an optional base.yaml, an optional environment-specific overlay, and
// finally environment variables, in ascending priority — mirroring the
// teacher's configuration Loader.
type Loader struct {
	basePath    string
	environment string
	sources     []string
}

// NewLoader creates a Loader rooted at basePath (default "config") for the
// named environment (e.g. "development", "production"; empty means no
// environment-specific overlay is attempted).
func NewLoader(basePath, environment string) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{basePath: basePath, environment: environment}
}

// Load builds a Settings value from defaults, files, and the environment,
// then validates it.
func (l *Loader) Load() (Settings, error) {
	settings := Default()
	l.sources = append(l.sources, "defaults")

	if err := l.loadYAMLFile("base.yaml", &settings); err != nil {
		return Settings{}, fmt.Errorf("config: load base.yaml: %w", err)
	}

	if l.environment != "" {
		envFile := l.environment + ".yaml"
		if err := l.loadYAMLFile(envFile, &settings); err != nil {
			return Settings{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	applyEnvOverrides(&settings)
	l.sources = append(l.sources, "environment")
	settings.LoadedFrom = l.sources

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (l *Loader) loadYAMLFile(name string, settings *Settings) error {
	path := filepath.Join(l.basePath, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	l.sources = append(l.sources, path)
	return nil
}

// applyEnvOverrides overlays a small set of environment variables, the
// highest-priority source. Only the fields operators commonly need to flip
// without a redeploy are covered, matching the teacher's env-override
// surface for its own Config.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("OLP_TOKEN_ENDPOINT_URL"); v != "" {
		s.Authentication.TokenEndpointURL = v
	}
	if v := os.Getenv("OLP_TOKEN_PROVIDER"); v != "" {
		s.Authentication.TokenProvider = v
	}
	if v := os.Getenv("OLP_PROPAGATE_ALL_CACHE_ERRORS"); v == "true" {
		s.PropagateAllCacheErrors = true
	}
}

// Load is a convenience wrapper that loads Settings using "config" as the
// base path and OLP_ENVIRONMENT (or no overlay, if unset) as the
// environment.
func Load() (Settings, error) {
	env := os.Getenv("OLP_ENVIRONMENT")
	return NewLoader("config", env).Load()
}

// MustLoad loads Settings and panics on error; intended for use only in
// main() or test setup.
func MustLoad() Settings {
	s, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return s
}
