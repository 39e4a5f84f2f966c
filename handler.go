// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// HandlerStreamStd is the console handler name.
	HandlerStreamStd = "STREAM.STD"
	// HandlerFile is the all-levels text file handler name.
	HandlerFile = "FILE"
	// HandlerFileErr is the error-only text file handler name.
	HandlerFileErr = "FILE_ERR"
	// HandlerFileJSON is the all-levels JSON file handler name.
	HandlerFileJSON = "FILE.JSON"
	// HandlerFileJSONErr is the error-only JSON file handler name.
	HandlerFileJSONErr = "FILE.JSON_ERR"
)

// Reserved argument keys: logging a truthy value under one of these keys
// suppresses the record on the matching sinks. The keys never reach the output.
const (
	DisableAllKey         = "disable_all"
	DisableStdKey         = "disable_std"
	DisableFileKey        = "disable_file"
	DisableFileErrKey     = "disable_file_err"
	DisableFileJSONKey    = "disable_file_json"
	DisableFileJSONErrKey = "disable_file_json_err"
)

// httpInfoKey carries the access log payload emitted by the HTTP middleware.
// HTTP-only sinks accept records with this key and every other sink hides it.
const httpInfoKey = "http_info"

var (
	// ErrHandlerRegistration reports a failure while registering a sink.
	ErrHandlerRegistration = errors.New("handler registration error")
	// ErrHandlerExists reports a duplicated handler name.
	ErrHandlerExists = errors.New("handler already registered")
)

// HandlerSpec is the immutable descriptor of a registered sink.
type HandlerSpec struct {
	Name        string
	Path        string // resolved file path; empty for the console handler
	Format      string // format_str template; empty for JSON handlers
	Level       Level  // minimum severity accepted regardless of the global level
	RotateSize  int64  // bytes
	RotateTime  string
	BackupCount int
	JSON        bool
	UseCustom   bool
	HTTPOnly    bool
}

// handler pairs a spec with its live sink and, for file handlers, the
// rotatable writer.
type handler struct {
	spec   HandlerSpec
	sink   hclog.SinkAdapter
	writer *lumberjack.Logger
}

func (h *handler) close() error {
	if h.writer == nil {
		return nil
	}
	return h.writer.Close()
}

// filterArgs strips the reserved keys from a key/value argument list. It
// reports whether the record must be dropped for the sink owning disableKey
// and returns the http_info payload when present.
func filterArgs(args []interface{}, disableKey string) (kept []interface{}, httpInfo map[string]any, drop bool) {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			kept = append(kept, args[i])
			break
		}

		key, isString := args[i].(string)
		if !isString {
			kept = append(kept, args[i], args[i+1])
			continue
		}

		switch key {
		case DisableAllKey, disableKey:
			if truthy(args[i+1]) {
				drop = true
			}
		case DisableStdKey, DisableFileKey, DisableFileErrKey, DisableFileJSONKey, DisableFileJSONErrKey:
			// reserved for another sink, hide from output
		case httpInfoKey:
			httpInfo, _ = args[i+1].(map[string]any)
		default:
			kept = append(kept, args[i], args[i+1])
		}
	}
	return kept, httpInfo, drop
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

// consoleSink renders records to stdout, switching to stderr for errors.
type consoleSink struct {
	gate      levelGate
	formatter *lineFormatter
	stdout    io.Writer
	stderr    io.Writer
	mu        sync.Mutex
}

var _ hclog.SinkAdapter = &consoleSink{}

func (s *consoleSink) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	if !s.gate.pass(level) {
		return
	}
	kept, _, drop := filterArgs(args, DisableStdKey)
	if drop {
		return
	}

	line := s.formatter.render(record{time: time.Now(), name: name, level: level, msg: msg, args: kept})

	s.mu.Lock()
	defer s.mu.Unlock()
	writer := s.stdout
	if level >= hclog.Error {
		writer = s.stderr
	}
	_, _ = io.WriteString(writer, line)
}

// fileSink renders records as text lines on a rotating file.
type fileSink struct {
	gate       levelGate
	formatter  *lineFormatter
	out        io.Writer
	disableKey string
	httpOnly   bool
	mu         sync.Mutex
}

var _ hclog.SinkAdapter = &fileSink{}

func (s *fileSink) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	if !s.gate.pass(level) {
		return
	}
	kept, httpInfo, drop := filterArgs(args, s.disableKey)
	if drop {
		return
	}

	var line string
	if s.httpOnly {
		if httpInfo == nil {
			return
		}
		line = renderHTTPAccessLine(httpInfo, time.Now())
	} else {
		line = s.formatter.render(record{time: time.Now(), name: name, level: level, msg: msg, args: kept})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.out, line)
}

// jsonSink writes records as JSON lines on a rotating file. When custom is
// false the engine's own JSON encoder is used through a sink adapter;
// otherwise records follow the custom shape with timestamp, level, level_no,
// name, message, extra and error fields.
type jsonSink struct {
	gate        levelGate
	engine      hclog.SinkAdapter // nil when custom
	custom      bool
	useDiagnose bool
	out         io.Writer
	disableKey  string
	httpOnly    bool
	mu          sync.Mutex
}

var _ hclog.SinkAdapter = &jsonSink{}

func (s *jsonSink) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	if !s.gate.pass(level) {
		return
	}
	kept, httpInfo, drop := filterArgs(args, s.disableKey)
	if drop {
		return
	}
	if s.httpOnly {
		if httpInfo == nil {
			return
		}
		s.writeHTTPInfo(httpInfo)
		return
	}

	if !s.custom {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.engine.Accept(name, level, msg, kept...)
		return
	}

	s.writeCustomRecord(name, level, msg, kept)
}

func (s *jsonSink) writeHTTPInfo(httpInfo map[string]any) {
	if _, found := httpInfo["datetime"]; !found {
		httpInfo["datetime"] = time.Now().Format(time.RFC3339)
	}
	encoded, err := json.Marshal(httpInfo)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(append(encoded, '\n'))
}

func (s *jsonSink) writeCustomRecord(name string, level hclog.Level, msg string, args []interface{}) {
	jsonRecord := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"level":     levelFromHclog(level).String(),
		"level_no":  int(level),
		"name":      name,
		"message":   msg,
		"extra":     nil,
		"error":     nil,
	}

	extra := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if key == "error" {
			jsonRecord["error"] = map[string]any{"value": fmt.Sprint(args[i+1])}
			continue
		}
		extra[key] = args[i+1]
	}
	if len(extra) > 0 {
		jsonRecord["extra"] = extra
	}

	if s.useDiagnose && level >= hclog.Error {
		jsonRecord["stack"] = string(debug.Stack())
	}

	encoded, err := json.Marshal(jsonRecord)
	if err != nil {
		// fall back to the message alone instead of losing the record
		encoded, _ = json.Marshal(map[string]any{"message": msg})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(append(encoded, '\n'))
}

// newFileWriter creates the rotating writer for a file handler, creating the
// log directory as needed. The file itself is only created on first write.
func newFileWriter(spec HandlerSpec) (*lumberjack.Logger, error) {
	dir := filepath.Dir(spec.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating directory %q: %s", ErrHandlerRegistration, dir, err.Error())
	}

	return &lumberjack.Logger{
		Filename:   spec.Path,
		MaxSize:    rotateSizeMegabytes(spec.RotateSize),
		MaxBackups: spec.BackupCount,
	}, nil
}

// rotateSizeMegabytes converts the configured byte threshold to the whole
// megabytes lumberjack works with, never below 1.
func rotateSizeMegabytes(bytes int64) int {
	const megabyte = 1024 * 1024
	megabytes := int((bytes + megabyte - 1) / megabyte)
	if megabytes < 1 {
		megabytes = 1
	}
	return megabytes
}
