// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is the config file location checked when no explicit
	// path is provided.
	DefaultConfigPath = "configs/logger.yml"

	appNamePlaceholder = "{app_name}"

	defaultRotateSize  = 10_000_000 // bytes
	defaultBackupCount = 90
	defaultRotateTime  = "00:00:00"

	minRotateSize = 1_000
	maxRotateSize = 1_000_000_000
	maxAppNameLen = 127
	minPathLen    = 5
	maxPathLen    = 255
)

var (
	// ErrConfigNotValid reports an invalid value inside the logger configuration.
	ErrConfigNotValid = errors.New("logger configuration not valid")
	// ErrConfigFile reports failures that occur while reading or decoding the config file.
	ErrConfigFile = errors.New("error reading logger configuration file")
)

// Config is the typed representation of the YAML/JSON logger configuration.
// Build custom configurations starting from DefaultConfig so that absent
// fields keep their documented defaults.
type Config struct {
	AppName     string          `json:"app_name" yaml:"app_name"`
	Level       string          `json:"level" yaml:"level"`
	UseDiagnose bool            `json:"use_diagnose" yaml:"use_diagnose"`
	Stream      StreamConfig    `json:"stream" yaml:"stream"`
	File        FileConfig      `json:"file" yaml:"file"`
	Intercept   InterceptConfig `json:"intercept" yaml:"intercept"`
	Extra       map[string]any  `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// StreamConfig configures the console handler.
type StreamConfig struct {
	UseColor   bool             `json:"use_color" yaml:"use_color"`
	UseIcon    bool             `json:"use_icon" yaml:"use_icon"`
	FormatStr  string           `json:"format_str" yaml:"format_str"`
	StdHandler StdHandlerConfig `json:"std_handler" yaml:"std_handler"`
}

// StdHandlerConfig toggles the console handler.
type StdHandlerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// FileConfig configures the rotating file handlers.
type FileConfig struct {
	LogsDir      string             `json:"logs_dir" yaml:"logs_dir"`
	RotateSize   int64              `json:"rotate_size" yaml:"rotate_size"`
	RotateTime   string             `json:"rotate_time" yaml:"rotate_time"`
	BackupCount  int                `json:"backup_count" yaml:"backup_count"`
	LogHandlers  LogHandlersConfig  `json:"log_handlers" yaml:"log_handlers"`
	JSONHandlers JSONHandlersConfig `json:"json_handlers" yaml:"json_handlers"`
}

// LogHandlersConfig configures the plain text file handlers.
type LogHandlersConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	FormatStr string `json:"format_str" yaml:"format_str"`
	LogPath   string `json:"log_path" yaml:"log_path"`
	ErrPath   string `json:"err_path" yaml:"err_path"`
}

// JSONHandlersConfig configures the JSON file handlers.
type JSONHandlersConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	UseCustom bool   `json:"use_custom" yaml:"use_custom"`
	LogPath   string `json:"log_path" yaml:"log_path"`
	ErrPath   string `json:"err_path" yaml:"err_path"`
}

// InterceptConfig configures how records emitted through the standard library
// logging facilities are redirected into the shared pipeline.
type InterceptConfig struct {
	AutoLoad       AutoLoadConfig `json:"auto_load" yaml:"auto_load"`
	IncludeModules []string       `json:"include_modules" yaml:"include_modules"`
	MuteModules    []string       `json:"mute_modules" yaml:"mute_modules"`
}

// AutoLoadConfig toggles the catch-all interception behaviour.
type AutoLoadConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	OnlyBase      bool     `json:"only_base" yaml:"only_base"`
	IgnoreModules []string `json:"ignore_modules" yaml:"ignore_modules"`
}

// DefaultConfig returns the built-in configuration used when no config file
// is found.
func DefaultConfig() *Config {
	return &Config{
		AppName: defaultAppName(),
		Level:   INFO.String(),
		Stream: StreamConfig{
			UseColor:   true,
			FormatStr:  defaultStreamFormat,
			StdHandler: StdHandlerConfig{Enabled: true},
		},
		File: FileConfig{
			LogsDir:     filepath.Join(workingDir(), "logs"),
			RotateSize:  defaultRotateSize,
			RotateTime:  defaultRotateTime,
			BackupCount: defaultBackupCount,
			LogHandlers: LogHandlersConfig{
				FormatStr: defaultFileFormat,
				LogPath:   "{app_name}.std.all.log",
				ErrPath:   "{app_name}.std.err.log",
			},
			JSONHandlers: JSONHandlersConfig{
				LogPath: filepath.Join("json", "{app_name}.json.all.log"),
				ErrPath: filepath.Join("json", "{app_name}.json.err.log"),
			},
		},
		Intercept: InterceptConfig{
			AutoLoad: AutoLoadConfig{Enabled: true},
		},
	}
}

func defaultAppName() string {
	name := filepath.Base(os.Args[0])
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	if name == "" || name == "." {
		name = "app"
	}
	return name
}

func workingDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// fileEnvelope matches the top-level document layout of config files.
type fileEnvelope struct {
	Logger *Config `json:"logger" yaml:"logger"`
}

// loadConfigFile decodes the file at path over cfg. The format is selected by
// the file extension. A missing file is not an error: the caller keeps its
// defaults.
func loadConfigFile(cfg *Config, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yml", ".yaml", ".json":
	default:
		return fmt.Errorf("%w: unsupported config file extension %q, must be .yml, .yaml or .json", ErrConfigFile, ext)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConfigFile, err.Error())
	}

	var probe map[string]any
	envelope := fileEnvelope{Logger: cfg}
	switch ext {
	case ".json":
		if err = json.Unmarshal(content, &probe); err == nil {
			err = json.Unmarshal(content, &envelope)
		}
	default:
		if err = yaml.Unmarshal(content, &probe); err == nil {
			err = yaml.Unmarshal(content, &envelope)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %q: %s", ErrConfigFile, path, err.Error())
	}

	if _, found := probe["logger"]; !found {
		return fmt.Errorf("%w: %q: missing top-level \"logger\" key", ErrConfigFile, path)
	}
	return nil
}

// LoadConfig builds the effective configuration: built-in defaults overlaid
// with the file at path (when it exists) and the environment overrides,
// validated and with every path template resolved.
func LoadConfig(path string) (*Config, error) {
	envVars, err := loadEnvOverrides()
	if err != nil {
		return nil, err
	}
	return resolveConfig(nil, path, envVars)
}

// resolveConfig produces the validated and resolved configuration from an
// optional explicit config, a file path and the environment overrides. An
// explicit configuration skips the file lookup.
func resolveConfig(explicit *Config, path string, envVars *envOverrides) (*Config, error) {
	cfg := DefaultConfig()
	if explicit != nil {
		snapshot := *explicit
		cfg = &snapshot
	} else {
		if path == "" {
			path = DefaultConfigPath
		}
		if envVars.ConfigPath != "" {
			path = envVars.ConfigPath
		}
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, err
		}
	}

	envVars.apply(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.resolve()
	return cfg, nil
}

// validate checks every field of the configuration and reports the first
// offending key. It must run before resolve.
func (c *Config) validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return fmt.Errorf("%w: `app_name` must not be empty", ErrConfigNotValid)
	}
	if len(c.AppName) > maxAppNameLen {
		return fmt.Errorf("%w: `app_name` must be at most %d characters", ErrConfigNotValid, maxAppNameLen)
	}

	if _, found := levelNames[strings.ToUpper(strings.TrimSpace(c.Level))]; !found {
		return fmt.Errorf("%w: `level` value %q is unknown", ErrConfigNotValid, c.Level)
	}

	if err := validateFormat(c.Stream.FormatStr); err != nil {
		return fmt.Errorf("%w: `stream.format_str`: %s", ErrConfigNotValid, err.Error())
	}

	if c.File.RotateSize < minRotateSize || c.File.RotateSize >= maxRotateSize {
		return fmt.Errorf("%w: `file.rotate_size` must be between %d and %d bytes", ErrConfigNotValid, minRotateSize, maxRotateSize)
	}
	if c.File.BackupCount < 1 {
		return fmt.Errorf("%w: `file.backup_count` must be at least 1", ErrConfigNotValid)
	}
	if strings.TrimSpace(c.File.LogsDir) == "" {
		return fmt.Errorf("%w: `file.logs_dir` must not be empty", ErrConfigNotValid)
	}
	if _, err := parseTimeOfDay(c.File.RotateTime); err != nil {
		return fmt.Errorf("%w: `file.rotate_time` value %q is invalid, must be HH:MM or HH:MM:SS", ErrConfigNotValid, c.File.RotateTime)
	}

	if err := validateFormat(c.File.LogHandlers.FormatStr); err != nil {
		return fmt.Errorf("%w: `file.log_handlers.format_str`: %s", ErrConfigNotValid, err.Error())
	}

	paths := map[string]string{
		"file.log_handlers.log_path":  c.File.LogHandlers.LogPath,
		"file.log_handlers.err_path":  c.File.LogHandlers.ErrPath,
		"file.json_handlers.log_path": c.File.JSONHandlers.LogPath,
		"file.json_handlers.err_path": c.File.JSONHandlers.ErrPath,
	}
	for key, value := range paths {
		if len(strings.TrimSpace(value)) < minPathLen || len(value) > maxPathLen {
			return fmt.Errorf("%w: `%s` must be a path between %d and %d characters", ErrConfigNotValid, key, minPathLen, maxPathLen)
		}
	}

	if c.File.LogHandlers.LogPath == c.File.LogHandlers.ErrPath {
		return fmt.Errorf("%w: `file.log_handlers.log_path` and `file.log_handlers.err_path` must be different", ErrConfigNotValid)
	}
	if c.File.JSONHandlers.LogPath == c.File.JSONHandlers.ErrPath {
		return fmt.Errorf("%w: `file.json_handlers.log_path` and `file.json_handlers.err_path` must be different", ErrConfigNotValid)
	}

	return nil
}

// resolve applies the in-place transformations that must happen after
// validation: {app_name} substitution, absolute file paths, the TRACE level
// side effects and the icon placeholder swap.
func (c *Config) resolve() {
	c.Level = strings.ToUpper(strings.TrimSpace(c.Level))
	if LevelFromString(c.Level) == TRACE {
		c.UseDiagnose = true
	}

	if c.Stream.UseIcon {
		c.Stream.FormatStr = strings.ReplaceAll(c.Stream.FormatStr, "{level_short}", "{level_icon}")
	}

	c.File.LogHandlers.LogPath = c.resolvePath(c.File.LogHandlers.LogPath)
	c.File.LogHandlers.ErrPath = c.resolvePath(c.File.LogHandlers.ErrPath)
	c.File.JSONHandlers.LogPath = c.resolvePath(c.File.JSONHandlers.LogPath)
	c.File.JSONHandlers.ErrPath = c.resolvePath(c.File.JSONHandlers.ErrPath)
}

// resolvePath substitutes the {app_name} placeholder and anchors relative
// paths to the configured logs directory.
func (c *Config) resolvePath(path string) string {
	path = strings.ReplaceAll(path, appNamePlaceholder, c.AppName)
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.File.LogsDir, path)
	}
	return path
}

// timeOfDay is the wall-clock moment of the scheduled file rotation.
type timeOfDay struct {
	hour, minute, second int
}

func parseTimeOfDay(value string) (timeOfDay, error) {
	layouts := []string{"15:04:05", "15:04"}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return timeOfDay{hour: parsed.Hour(), minute: parsed.Minute(), second: parsed.Second()}, nil
		}
	}
	return timeOfDay{}, fmt.Errorf("invalid time of day %q", value)
}

// next returns the first occurrence of the time of day strictly after now.
func (t timeOfDay) next(now time.Time) time.Time {
	occurrence := time.Date(now.Year(), now.Month(), now.Day(), t.hour, t.minute, t.second, 0, now.Location())
	if !occurrence.After(now) {
		occurrence = occurrence.AddDate(0, 0, 1)
	}
	return occurrence
}
