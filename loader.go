// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// ErrLoaderNotLoaded reports usage of a loader before the first Load.
	ErrLoaderNotLoaded = errors.New("loader not loaded")
)

// Option customizes a Loader.
type Option func(*Loader)

// WithConfigPath sets the configuration file to read instead of
// DefaultConfigPath. The BEANS_LOGGING_CONFIG_PATH environment variable still
// takes precedence.
func WithConfigPath(path string) Option {
	return func(l *Loader) {
		l.configPath = path
	}
}

// WithConfig sets an explicit configuration, skipping the file lookup
// entirely. Start from DefaultConfig to keep the documented defaults.
func WithConfig(cfg *Config) Option {
	return func(l *Loader) {
		l.explicit = cfg
	}
}

// WithStreams redirects the console handler output, mainly for tests.
func WithStreams(stdout, stderr io.Writer) Option {
	return func(l *Loader) {
		l.stdout = stdout
		l.stderr = stderr
	}
}

// Loader owns the configuration and the set of registered handlers. It builds
// the shared logger on Load and swaps the sinks in place on Reload.
type Loader struct {
	mu sync.Mutex

	configPath string
	explicit   *Config
	stdout     io.Writer
	stderr     io.Writer

	config   *Config
	root     hclog.InterceptLogger
	logger   Logger
	level    *atomicLevel
	handlers map[string]*handler
	order    []string
	rotateAt timeOfDay
	rot      *rotator
	ic       interceptor
}

// NewLoader creates a Loader. No handler is registered until Load is called.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		level:    newAtomicLevel(INFO),
		handlers: make(map[string]*handler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the configuration (file plus environment overrides), validates
// it and registers the enabled handlers, replacing any previous registration.
// It returns the shared logger instance.
func (l *Loader) Load() (Logger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Reload replaces the registered handlers with the ones described by the
// current configuration sources. Sinks are never duplicated: the previous
// registration is torn down first.
func (l *Loader) Reload() (Logger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// UpdateConfig replaces the explicit configuration used by the next Load or
// Reload. The configuration is validated immediately so that errors surface
// at the call site.
func (l *Loader) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration must not be nil", ErrConfigNotValid)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.explicit = cfg
	return nil
}

// Config returns a copy of the last loaded configuration.
func (l *Loader) Config() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.config == nil {
		return Config{}, ErrLoaderNotLoaded
	}
	return *l.config, nil
}

// Logger returns the shared logger instance built by Load.
func (l *Loader) Logger() Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logger == nil {
		return nullLogger
	}
	return l.logger
}

// Module returns a slog logger routed through the interception pipeline and
// tagged with the given module name.
func (l *Loader) Module(name string) *slog.Logger {
	return l.ic.module(name)
}

// SetLevel updates the level shared by every registered handler.
func (l *Loader) SetLevel(level Level) {
	l.level.Store(level)
}

// Handlers returns the descriptors of the registered handlers, in
// registration order.
func (l *Loader) Handlers() []HandlerSpec {
	l.mu.Lock()
	defer l.mu.Unlock()

	specs := make([]HandlerSpec, 0, len(l.order))
	for _, name := range l.order {
		specs = append(specs, l.handlers[name].spec)
	}
	return specs
}

// Close deregisters every handler, stops the rotation scheduler and closes
// the file writers.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.teardownLocked()
}

func (l *Loader) load() (Logger, error) {
	envVars, err := loadEnvOverrides()
	if err != nil {
		return nil, err
	}

	cfg, err := resolveConfig(l.explicit, l.configPath, envVars)
	if err != nil {
		return nil, err
	}

	rotateAt, err := parseTimeOfDay(cfg.File.RotateTime)
	if err != nil {
		return nil, fmt.Errorf("%w: `file.rotate_time`: %s", ErrConfigNotValid, err.Error())
	}

	if l.root == nil {
		l.root = hclog.NewInterceptLogger(&hclog.LoggerOptions{
			Name:   cfg.AppName,
			Level:  hclog.Trace,
			Output: io.Discard,
			TimeFn: time.Now,
		})
	}

	// Build the new handlers before tearing down the old ones: a failure must
	// leave the previous registration untouched.
	newHandlers := make([]*handler, 0, 5)
	for _, spec := range enabledSpecs(cfg) {
		built, err := l.buildHandler(spec, cfg)
		if err != nil {
			closeHandlers(newHandlers)
			return nil, err
		}
		newHandlers = append(newHandlers, built)
	}

	if err := l.teardownLocked(); err != nil {
		closeHandlers(newHandlers)
		return nil, err
	}

	l.level.Store(LevelFromString(cfg.Level))
	for _, built := range newHandlers {
		l.root.RegisterSink(built.sink)
		l.handlers[built.spec.Name] = built
		l.order = append(l.order, built.spec.Name)
	}

	l.config = cfg
	l.rotateAt = rotateAt
	l.restartRotatorLocked()

	if l.logger == nil {
		l.logger = &instance{log: l.root, level: l.level}
	}
	l.ic.load(l.root, cfg.Intercept)

	return l.logger, nil
}

// enabledSpecs derives the handler descriptors from a resolved configuration.
// Disabled handlers are skipped entirely: no sink registered, no file created.
func enabledSpecs(cfg *Config) []HandlerSpec {
	var specs []HandlerSpec

	if cfg.Stream.StdHandler.Enabled {
		specs = append(specs, HandlerSpec{
			Name:   HandlerStreamStd,
			Format: cfg.Stream.FormatStr,
			Level:  TRACE,
		})
	}

	if cfg.File.LogHandlers.Enabled {
		specs = append(specs,
			HandlerSpec{
				Name:        HandlerFile,
				Path:        cfg.File.LogHandlers.LogPath,
				Format:      cfg.File.LogHandlers.FormatStr,
				Level:       TRACE,
				RotateSize:  cfg.File.RotateSize,
				RotateTime:  cfg.File.RotateTime,
				BackupCount: cfg.File.BackupCount,
			},
			HandlerSpec{
				Name:        HandlerFileErr,
				Path:        cfg.File.LogHandlers.ErrPath,
				Format:      cfg.File.LogHandlers.FormatStr,
				Level:       WARN,
				RotateSize:  cfg.File.RotateSize,
				RotateTime:  cfg.File.RotateTime,
				BackupCount: cfg.File.BackupCount,
			},
		)
	}

	if cfg.File.JSONHandlers.Enabled {
		specs = append(specs,
			HandlerSpec{
				Name:        HandlerFileJSON,
				Path:        cfg.File.JSONHandlers.LogPath,
				Level:       TRACE,
				RotateSize:  cfg.File.RotateSize,
				RotateTime:  cfg.File.RotateTime,
				BackupCount: cfg.File.BackupCount,
				JSON:        true,
				UseCustom:   cfg.File.JSONHandlers.UseCustom,
			},
			HandlerSpec{
				Name:        HandlerFileJSONErr,
				Path:        cfg.File.JSONHandlers.ErrPath,
				Level:       WARN,
				RotateSize:  cfg.File.RotateSize,
				RotateTime:  cfg.File.RotateTime,
				BackupCount: cfg.File.BackupCount,
				JSON:        true,
				UseCustom:   cfg.File.JSONHandlers.UseCustom,
			},
		)
	}

	return specs
}

// buildHandler creates the sink and, for file handlers, the rotating writer
// described by a spec.
func (l *Loader) buildHandler(spec HandlerSpec, cfg *Config) (*handler, error) {
	gate := levelGate{floor: spec.Level.convertedLevel(), shared: l.level}

	if spec.Path == "" {
		return &handler{
			spec: spec,
			sink: &consoleSink{
				gate:      gate,
				formatter: newLineFormatter(spec.Format, cfg.Stream.UseColor),
				stdout:    l.stdout,
				stderr:    l.stderr,
			},
		}, nil
	}

	writer, err := newFileWriter(spec)
	if err != nil {
		return nil, err
	}

	if spec.JSON {
		sink := &jsonSink{
			gate:        gate,
			custom:      spec.UseCustom,
			useDiagnose: cfg.UseDiagnose,
			out:         writer,
			disableKey:  disableKeyForHandler(spec.Name),
			httpOnly:    spec.HTTPOnly,
		}
		if !spec.UseCustom {
			sink.engine = hclog.NewSinkAdapter(&hclog.LoggerOptions{
				JSONFormat: true,
				Output:     writer,
				Level:      hclog.Trace,
				TimeFn:     time.Now,
			})
		}
		return &handler{spec: spec, sink: sink, writer: writer}, nil
	}

	return &handler{
		spec: spec,
		sink: &fileSink{
			gate:       gate,
			formatter:  newLineFormatter(spec.Format, false),
			out:        writer,
			disableKey: disableKeyForHandler(spec.Name),
			httpOnly:   spec.HTTPOnly,
		},
		writer: writer,
	}, nil
}

func disableKeyForHandler(name string) string {
	switch name {
	case HandlerFile:
		return DisableFileKey
	case HandlerFileErr:
		return DisableFileErrKey
	case HandlerFileJSON:
		return DisableFileJSONKey
	case HandlerFileJSONErr:
		return DisableFileJSONErrKey
	default:
		return DisableAllKey
	}
}

// AddCustomHandler registers an additional sink described by spec on top of
// the configured ones. The handler name must be unique.
func (l *Loader) AddCustomHandler(spec HandlerSpec) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config == nil {
		return ErrLoaderNotLoaded
	}
	if _, exists := l.handlers[spec.Name]; exists {
		return fmt.Errorf("%w: %q", ErrHandlerExists, spec.Name)
	}

	if spec.Path != "" {
		spec.Path = l.config.resolvePath(spec.Path)
	}
	if spec.RotateSize == 0 {
		spec.RotateSize = l.config.File.RotateSize
	}
	if spec.RotateTime == "" {
		spec.RotateTime = l.config.File.RotateTime
	}
	if spec.BackupCount == 0 {
		spec.BackupCount = l.config.File.BackupCount
	}
	if spec.Format == "" && !spec.JSON {
		spec.Format = l.config.File.LogHandlers.FormatStr
	}
	if !spec.HTTPOnly {
		if err := validateFormat(spec.Format); err != nil {
			return fmt.Errorf("%w: handler %q: %s", ErrConfigNotValid, spec.Name, err.Error())
		}
	}

	built, err := l.buildHandler(spec, l.config)
	if err != nil {
		return err
	}

	l.root.RegisterSink(built.sink)
	l.handlers[spec.Name] = built
	l.order = append(l.order, spec.Name)
	l.restartRotatorLocked()
	return nil
}

// RemoveHandler deregisters a single handler by name.
func (l *Loader) RemoveHandler(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	built, exists := l.handlers[name]
	if !exists {
		return fmt.Errorf("%w: handler %q is not registered", ErrConfigNotValid, name)
	}

	l.root.DeregisterSink(built.sink)
	delete(l.handlers, name)
	for index, candidate := range l.order {
		if candidate == name {
			l.order = append(l.order[:index], l.order[index+1:]...)
			break
		}
	}
	err := built.close()
	l.restartRotatorLocked()
	return err
}

func (l *Loader) teardownLocked() error {
	if l.rot != nil {
		l.rot.Close()
		l.rot = nil
	}

	var errs []error
	for _, name := range l.order {
		built := l.handlers[name]
		l.root.DeregisterSink(built.sink)
		if err := built.close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.handlers = make(map[string]*handler)
	l.order = nil
	return errors.Join(errs...)
}

// restartRotatorLocked rebuilds the time-of-day rotation scheduler over the
// current set of file writers.
func (l *Loader) restartRotatorLocked() {
	if l.rot != nil {
		l.rot.Close()
		l.rot = nil
	}

	var targets []*lumberjack.Logger
	for _, name := range l.order {
		if writer := l.handlers[name].writer; writer != nil {
			targets = append(targets, writer)
		}
	}
	if len(targets) > 0 {
		l.rot = newRotator(l.rotateAt, targets)
	}
}

func closeHandlers(handlers []*handler) {
	for _, built := range handlers {
		_ = built.close()
	}
}
