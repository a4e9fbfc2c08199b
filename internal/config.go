package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "bqrows.yaml"

type LookupFunc func(string) (string, bool)

// Environment holds the settings for one deployment environment, such as
// dev or sandbox.
type Environment struct {
	Project         string `yaml:"project"`
	Dataset         string `yaml:"dataset"`
	CredentialsFile string `yaml:"credentials_file"`
	Location        string `yaml:"location"`
	PageSize        int    `yaml:"page_size"`
}

type ConfigFile struct {
	Default      string                 `yaml:"default"`
	Environments map[string]Environment `yaml:"environments"`
}

// Overrides come from command-line flags and win over everything else.
type Overrides struct {
	Env             string
	ConfigPath      string
	Project         string
	CredentialsFile string
}

type Config struct {
	Env string
	Environment
}

func LoadConfigFromEnv(overrides Overrides) (Config, error) {
	return LoadConfig(overrides, os.LookupEnv)
}

func LoadConfig(overrides Overrides, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	path, explicit := firstSet(lookup, overrides.ConfigPath, "BQROWS_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	file, err := readConfigFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			file = &ConfigFile{}
		} else {
			return Config{}, err
		}
	}

	cfg := Config{}
	cfg.Env, _ = firstSet(lookup, overrides.Env, "BQROWS_ENV")
	if cfg.Env == "" {
		cfg.Env = file.Default
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if cfg.Env != "" {
		env, ok := file.Environments[cfg.Env]
		if !ok {
			return Config{}, fmt.Errorf("Unknown environment: %s. Valid environments are %s", cfg.Env, strings.Join(sortedKeys(file.Environments), ", "))
		}
		cfg.Environment = env
	}

	if project, _ := firstSet(lookup, overrides.Project, "GOOGLE_CLOUD_PROJECT"); project != "" {
		cfg.Project = project
	}
	if credentials, _ := firstSet(lookup, overrides.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS"); credentials != "" {
		cfg.CredentialsFile = credentials
	}

	if cfg.PageSize < 0 {
		return Config{}, fmt.Errorf("page_size must not be negative for environment %q", cfg.Env)
	}

	return cfg, nil
}

func readConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	file := &ConfigFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return file, nil
}

// firstSet returns the flag value if set, else the environment variable. The
// bool reports whether a value was found at all.
func firstSet(lookup LookupFunc, flagValue string, key string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	return "", false
}
