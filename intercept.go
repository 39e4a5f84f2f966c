// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// moduleKey is the argument key carrying the originating module name of an
// intercepted record.
const moduleKey = "module"

// interceptor redirects records emitted through the standard library logging
// facilities into the shared pipeline. It runs once per process: the loaded
// flag makes re-invocation a no-op, so reloading the configuration never
// duplicates the interception.
type interceptor struct {
	mu     sync.Mutex
	loaded bool
	cfg    InterceptConfig
	root   hclog.Logger
}

// load captures the intercept rules and rewires the default log and slog
// loggers. Records flow through the loader's root logger, so sink swaps on
// reload take effect without touching the interception again.
func (ic *interceptor) load(root hclog.Logger, cfg InterceptConfig) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.loaded {
		return
	}
	ic.loaded = true
	ic.cfg = cfg
	ic.root = root

	log.SetFlags(0)
	log.SetOutput(root.StandardWriter(&hclog.StandardLoggerOptions{
		InferLevels:              true,
		InferLevelsWithTimestamp: true,
	}))
	slog.SetDefault(slog.New(&slogBridge{ic: ic}))
}

// module returns a slog logger tagged with the given module name, subject to
// the include and mute lists.
func (ic *interceptor) module(name string) *slog.Logger {
	return slog.New(&slogBridge{ic: ic, module: name})
}

// allows applies the intercept rules to a module name: muted modules are
// always dropped, included modules always pass and everything else passes
// only while auto loading is enabled and the module is not ignored.
func (ic *interceptor) allows(module string) bool {
	ic.mu.Lock()
	cfg := ic.cfg
	ic.mu.Unlock()

	base := module
	if cfg.AutoLoad.OnlyBase {
		base = baseModule(module)
	}

	if matchesModule(cfg.MuteModules, module, base) {
		return false
	}
	if matchesModule(cfg.IncludeModules, module, base) {
		return true
	}
	if !cfg.AutoLoad.Enabled {
		return false
	}
	return !matchesModule(cfg.AutoLoad.IgnoreModules, module, base)
}

func baseModule(module string) string {
	if index := strings.IndexByte(module, '.'); index >= 0 {
		return module[:index]
	}
	return module
}

func matchesModule(list []string, module, base string) bool {
	for _, candidate := range list {
		if candidate == module || candidate == base {
			return true
		}
	}
	return false
}

// slogBridge forwards slog records into the shared hclog pipeline.
type slogBridge struct {
	ic     *interceptor
	module string
	attrs  []slog.Attr
}

var _ slog.Handler = &slogBridge{}

// Enabled always reports true: level filtering belongs to the sinks so that
// the pipeline rules stay in one place.
func (b *slogBridge) Enabled(context.Context, slog.Level) bool {
	return true
}

func (b *slogBridge) Handle(_ context.Context, rec slog.Record) error {
	module := b.module

	args := make([]interface{}, 0, (len(b.attrs)+rec.NumAttrs()+1)*2)
	for _, attr := range b.attrs {
		if attr.Key == moduleKey {
			continue
		}
		args = append(args, attr.Key, attr.Value.Any())
	}
	rec.Attrs(func(attr slog.Attr) bool {
		if attr.Key == moduleKey {
			if module == "" {
				module = attr.Value.String()
			}
			return true
		}
		args = append(args, attr.Key, attr.Value.Any())
		return true
	})

	if !b.ic.allows(module) {
		return nil
	}
	if module != "" {
		args = append(args, moduleKey, module)
	}

	b.ic.root.Log(hclogLevel(rec.Level), rec.Message, args...)
	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := &slogBridge{ic: b.ic, module: b.module}
	clone.attrs = append(append([]slog.Attr{}, b.attrs...), attrs...)
	for _, attr := range attrs {
		if attr.Key == moduleKey && clone.module == "" {
			clone.module = attr.Value.String()
		}
	}
	return clone
}

// WithGroup reuses the group name as the module name when none is set yet,
// matching how named loggers identify themselves.
func (b *slogBridge) WithGroup(name string) slog.Handler {
	clone := &slogBridge{ic: b.ic, module: b.module, attrs: b.attrs}
	if clone.module == "" {
		clone.module = name
	}
	return clone
}

func hclogLevel(level slog.Level) hclog.Level {
	switch {
	case level < slog.LevelDebug:
		return hclog.Trace
	case level < slog.LevelInfo:
		return hclog.Debug
	case level < slog.LevelWarn:
		return hclog.Info
	case level < slog.LevelError:
		return hclog.Warn
	default:
		return hclog.Error
	}
}
