// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"bytes"
	"log"
	"log/slog"
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInterceptor(cfg InterceptConfig) (*interceptor, *bytes.Buffer) {
	buffer := &bytes.Buffer{}
	root := hclog.New(&hclog.LoggerOptions{
		Name:       "app",
		Level:      hclog.Trace,
		JSONFormat: true,
		Output:     buffer,
	})
	return &interceptor{loaded: true, cfg: cfg, root: root}, buffer
}

func TestInterceptorAllows(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg      InterceptConfig
		module   string
		expected bool
	}{
		"autoload takes everything": {
			cfg:      InterceptConfig{AutoLoad: AutoLoadConfig{Enabled: true}},
			module:   "anything",
			expected: true,
		},
		"muted module is dropped": {
			cfg: InterceptConfig{
				AutoLoad:    AutoLoadConfig{Enabled: true},
				MuteModules: []string{"noisy"},
			},
			module:   "noisy",
			expected: false,
		},
		"mute wins over include": {
			cfg: InterceptConfig{
				AutoLoad:       AutoLoadConfig{Enabled: true},
				IncludeModules: []string{"noisy"},
				MuteModules:    []string{"noisy"},
			},
			module:   "noisy",
			expected: false,
		},
		"include passes without autoload": {
			cfg: InterceptConfig{
				IncludeModules: []string{"wanted"},
			},
			module:   "wanted",
			expected: true,
		},
		"not included without autoload": {
			cfg: InterceptConfig{
				IncludeModules: []string{"wanted"},
			},
			module:   "other",
			expected: false,
		},
		"ignored module is dropped from autoload": {
			cfg: InterceptConfig{
				AutoLoad: AutoLoadConfig{Enabled: true, IgnoreModules: []string{"chatty"}},
			},
			module:   "chatty",
			expected: false,
		},
		"only_base matches the first segment": {
			cfg: InterceptConfig{
				AutoLoad:    AutoLoadConfig{Enabled: true, OnlyBase: true},
				MuteModules: []string{"noisy"},
			},
			module:   "noisy.child.grandchild",
			expected: false,
		},
		"full name does not match without only_base": {
			cfg: InterceptConfig{
				AutoLoad:    AutoLoadConfig{Enabled: true},
				MuteModules: []string{"noisy"},
			},
			module:   "noisy.child",
			expected: true,
		},
	}

	for name, test := range tests {
		test := test
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ic, _ := newTestInterceptor(test.cfg)
			assert.Equal(t, test.expected, ic.allows(test.module))
		})
	}
}

func TestInterceptorModuleLogger(t *testing.T) {
	t.Parallel()

	t.Run("allowed module flows through with its name", func(t *testing.T) {
		t.Parallel()

		ic, buffer := newTestInterceptor(InterceptConfig{AutoLoad: AutoLoadConfig{Enabled: true}})
		ic.module("billing").Info("invoice ready", "invoice_id", 42)

		out := buffer.String()
		assert.Contains(t, out, "invoice ready")
		assert.Contains(t, out, `"module":"billing"`)
		assert.Contains(t, out, `"invoice_id":42`)
	})

	t.Run("muted module writes nothing", func(t *testing.T) {
		t.Parallel()

		ic, buffer := newTestInterceptor(InterceptConfig{
			AutoLoad:    AutoLoadConfig{Enabled: true},
			MuteModules: []string{"noisy"},
		})
		ic.module("noisy").Error("should vanish")

		assert.Empty(t, buffer.String())
	})

	t.Run("module attr names a plain record", func(t *testing.T) {
		t.Parallel()

		ic, buffer := newTestInterceptor(InterceptConfig{AutoLoad: AutoLoadConfig{Enabled: true}})
		logger := slog.New(&slogBridge{ic: ic})
		logger.Info("tagged", "module", "payments")

		out := buffer.String()
		assert.Contains(t, out, `"module":"payments"`)
	})

	t.Run("WithGroup sets the module once", func(t *testing.T) {
		t.Parallel()

		ic, buffer := newTestInterceptor(InterceptConfig{
			AutoLoad:    AutoLoadConfig{Enabled: true},
			MuteModules: []string{"grouped"},
		})
		logger := slog.New(&slogBridge{ic: ic}).WithGroup("grouped")
		logger.Warn("should vanish")

		assert.Empty(t, buffer.String())
	})

	t.Run("bound module attr is not duplicated", func(t *testing.T) {
		t.Parallel()

		ic, buffer := newTestInterceptor(InterceptConfig{AutoLoad: AutoLoadConfig{Enabled: true}})
		logger := ic.module("billing").With("module", "ignored")
		logger.Info("once")

		out := buffer.String()
		assert.Equal(t, 1, bytes.Count([]byte(out), []byte(`"module"`)))
		assert.Contains(t, out, `"module":"billing"`)
	})

	t.Run("levels map onto the pipeline levels", func(t *testing.T) {
		t.Parallel()

		ic, buffer := newTestInterceptor(InterceptConfig{AutoLoad: AutoLoadConfig{Enabled: true}})
		logger := ic.module("svc")

		logger.Debug("at debug")
		logger.Warn("at warn")
		logger.Error("at error")

		out := buffer.String()
		assert.Contains(t, out, `"@level":"debug"`)
		assert.Contains(t, out, `"@level":"warn"`)
		assert.Contains(t, out, `"@level":"error"`)
	})
}

func TestInterceptorLoadOnce(t *testing.T) {
	previousFlags := log.Flags()
	previousDefault := slog.Default()
	t.Cleanup(func() {
		log.SetFlags(previousFlags)
		log.SetOutput(os.Stderr)
		slog.SetDefault(previousDefault)
	})

	buffer := &bytes.Buffer{}
	root := hclog.New(&hclog.LoggerOptions{
		Name:       "app",
		Level:      hclog.Trace,
		JSONFormat: true,
		Output:     buffer,
	})

	ic := &interceptor{}
	ic.load(root, InterceptConfig{AutoLoad: AutoLoadConfig{Enabled: true}})

	log.Print("through the standard logger")
	assert.Contains(t, buffer.String(), "through the standard logger")

	slog.Info("through the default slog logger")
	assert.Contains(t, buffer.String(), "through the default slog logger")

	// a second load must not replace the captured rules
	ic.load(root, InterceptConfig{MuteModules: []string{"anything"}})
	require.True(t, ic.allows("anything"))
}
