// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	t.Parallel()

	t.Run("plain args are kept", func(t *testing.T) {
		t.Parallel()

		kept, httpInfo, drop := filterArgs([]interface{}{"key", "value", "n", 1}, DisableStdKey)
		assert.Equal(t, []interface{}{"key", "value", "n", 1}, kept)
		assert.Nil(t, httpInfo)
		assert.False(t, drop)
	})

	t.Run("own disable key drops the record", func(t *testing.T) {
		t.Parallel()

		_, _, drop := filterArgs([]interface{}{DisableStdKey, true}, DisableStdKey)
		assert.True(t, drop)
	})

	t.Run("disable_all drops on every sink", func(t *testing.T) {
		t.Parallel()

		_, _, drop := filterArgs([]interface{}{DisableAllKey, true}, DisableFileJSONKey)
		assert.True(t, drop)
	})

	t.Run("falsy disable value keeps the record", func(t *testing.T) {
		t.Parallel()

		kept, _, drop := filterArgs([]interface{}{DisableStdKey, false, "key", "value"}, DisableStdKey)
		assert.False(t, drop)
		assert.Equal(t, []interface{}{"key", "value"}, kept)
	})

	t.Run("reserved keys for other sinks are hidden", func(t *testing.T) {
		t.Parallel()

		kept, _, drop := filterArgs([]interface{}{DisableFileKey, true, "key", "value"}, DisableStdKey)
		assert.False(t, drop)
		assert.Equal(t, []interface{}{"key", "value"}, kept)
	})

	t.Run("http_info payload is extracted and hidden", func(t *testing.T) {
		t.Parallel()

		payload := map[string]any{"status": 200}
		kept, httpInfo, drop := filterArgs([]interface{}{httpInfoKey, payload, "key", "value"}, DisableStdKey)
		assert.False(t, drop)
		assert.Equal(t, payload, httpInfo)
		assert.Equal(t, []interface{}{"key", "value"}, kept)
	})

	t.Run("odd trailing arg survives", func(t *testing.T) {
		t.Parallel()

		kept, _, _ := filterArgs([]interface{}{"orphan"}, DisableStdKey)
		assert.Equal(t, []interface{}{"orphan"}, kept)
	})
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	assert.True(t, truthy(true))
	assert.True(t, truthy("true"))
	assert.True(t, truthy("1"))
	assert.False(t, truthy(false))
	assert.False(t, truthy("yes"))
	assert.False(t, truthy(1))
	assert.False(t, truthy(nil))
}

func TestRotateSizeMegabytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, rotateSizeMegabytes(1))
	assert.Equal(t, 1, rotateSizeMegabytes(1024*1024))
	assert.Equal(t, 2, rotateSizeMegabytes(1024*1024+1))
	assert.Equal(t, 10, rotateSizeMegabytes(10*1024*1024))
}

func TestConsoleSink(t *testing.T) {
	t.Parallel()

	newSink := func(level Level) (*consoleSink, *strings.Builder, *strings.Builder) {
		shared := newAtomicLevel(level)
		stdout := &strings.Builder{}
		stderr := &strings.Builder{}
		return &consoleSink{
			gate:      levelGate{floor: hclog.Trace, shared: shared},
			formatter: newLineFormatter("{level_short} {message}", false),
			stdout:    stdout,
			stderr:    stderr,
		}, stdout, stderr
	}

	t.Run("errors go to stderr, the rest to stdout", func(t *testing.T) {
		t.Parallel()

		sink, stdout, stderr := newSink(TRACE)
		sink.Accept("app", hclog.Info, "hello")
		sink.Accept("app", hclog.Error, "boom")

		assert.Contains(t, stdout.String(), "hello")
		assert.NotContains(t, stdout.String(), "boom")
		assert.Contains(t, stderr.String(), "boom")
	})

	t.Run("records below the shared level are dropped", func(t *testing.T) {
		t.Parallel()

		sink, stdout, _ := newSink(INFO)
		sink.Accept("app", hclog.Debug, "invisible")
		sink.Accept("app", hclog.Info, "visible")

		assert.NotContains(t, stdout.String(), "invisible")
		assert.Contains(t, stdout.String(), "visible")
	})
}

func TestJSONSinkCustomRecord(t *testing.T) {
	t.Parallel()

	out := &strings.Builder{}
	sink := &jsonSink{
		gate:       levelGate{floor: hclog.Trace, shared: newAtomicLevel(TRACE)},
		custom:     true,
		out:        out,
		disableKey: DisableFileJSONKey,
	}

	sink.Accept("app", hclog.Warn, "low disk", "free_mb", 12, "error", "fill up")

	line := out.String()
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, `"message":"low disk"`)
	assert.Contains(t, line, `"level":"WARN"`)
	assert.Contains(t, line, `"name":"app"`)
	assert.Contains(t, line, `"free_mb":12`)
	assert.Contains(t, line, `"value":"fill up"`)
}

func TestJSONSinkDiagnoseStack(t *testing.T) {
	t.Parallel()

	out := &strings.Builder{}
	sink := &jsonSink{
		gate:        levelGate{floor: hclog.Trace, shared: newAtomicLevel(TRACE)},
		custom:      true,
		useDiagnose: true,
		out:         out,
		disableKey:  DisableFileJSONErrKey,
	}

	sink.Accept("app", hclog.Info, "fine")
	assert.NotContains(t, out.String(), `"stack"`)

	out.Reset()
	sink.Accept("app", hclog.Error, "broken")
	assert.Contains(t, out.String(), `"stack"`)
}
