// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

var (
	// ErrEnvVariablesNotValid reports unparsable environment overrides.
	ErrEnvVariablesNotValid = errors.New("environment variables not valid")
)

// envOverrides is the fixed set of environment variables that take precedence
// over file-specified configuration values.
type envOverrides struct {
	DisableDefault string `env:"BEANS_LOGGING_DISABLE_DEFAULT"`
	ConfigPath     string `env:"BEANS_LOGGING_CONFIG_PATH"`
	LogsDir        string `env:"BEANS_LOGGING_LOGS_DIR"`
	Debug          string `env:"DEBUG"`
	Env            string `env:"ENV"`
}

func loadEnvOverrides() (*envOverrides, error) {
	var envVars envOverrides
	if err := env.Parse(&envVars); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEnvVariablesNotValid, err.Error())
	}
	return &envVars, nil
}

// disableDefault reports whether the package level default logger must not
// auto-initialize.
func (e *envOverrides) disableDefault() bool {
	value := strings.ToLower(strings.TrimSpace(e.DisableDefault))
	return value == "true" || value == "1"
}

// debugMode reports whether the DEBUG/ENV variables ask for a more verbose
// level: DEBUG explicitly set, or a development environment with DEBUG unset.
func (e *envOverrides) debugMode() bool {
	debug := strings.ToLower(strings.TrimSpace(e.Debug))
	environment := strings.ToLower(strings.TrimSpace(e.Env))

	if debug == "true" || debug == "1" {
		return true
	}
	return environment == "development" && debug == ""
}

// apply overlays the environment values on a configuration. It runs after the
// file is decoded, so env vars win over file values for the documented keys.
func (e *envOverrides) apply(cfg *Config) {
	if e.LogsDir != "" {
		cfg.File.LogsDir = e.LogsDir
	}

	if e.debugMode() && LevelFromString(cfg.Level) != TRACE {
		cfg.Level = DEBUG.String()
	}
}
