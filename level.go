// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// Level is the severity of a log record.
type Level int

const (
	ERROR Level = iota
	WARN
	INFO
	DEBUG
	TRACE
)

// LevelFromString parses a level name into a Level. It accepts the aliases
// used by legacy configurations: SUCCESS maps to INFO, WARNING to WARN and
// CRITICAL or FATAL to ERROR. Unknown names default to INFO.
func LevelFromString(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO", "SUCCESS":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR", "CRITICAL", "FATAL":
		return ERROR
	default:
		return INFO
	}
}

// levelNames contains valid names accepted inside configuration files. Unlike
// LevelFromString a config file with an unknown level must fail validation.
var levelNames = map[string]Level{
	"TRACE":    TRACE,
	"DEBUG":    DEBUG,
	"INFO":     INFO,
	"SUCCESS":  INFO,
	"WARN":     WARN,
	"WARNING":  WARN,
	"ERROR":    ERROR,
	"CRITICAL": ERROR,
	"FATAL":    ERROR,
}

func (l Level) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

func (l Level) convertedLevel() hclog.Level {
	switch l {
	case TRACE:
		return hclog.Trace
	case DEBUG:
		return hclog.Debug
	case INFO:
		return hclog.Info
	case WARN:
		return hclog.Warn
	case ERROR:
		return hclog.Error
	default:
		return hclog.Info
	}
}

func levelFromHclog(level hclog.Level) Level {
	switch level {
	case hclog.Trace:
		return TRACE
	case hclog.Debug:
		return DEBUG
	case hclog.Info, hclog.NoLevel:
		return INFO
	case hclog.Warn:
		return WARN
	case hclog.Error:
		return ERROR
	default:
		return INFO
	}
}

// atomicLevel is a Level shared between the loader and every registered sink,
// so that SetLevel takes effect on all of them at once.
type atomicLevel struct {
	value int32
}

func newAtomicLevel(level Level) *atomicLevel {
	l := &atomicLevel{}
	l.Store(level)
	return l
}

func (a *atomicLevel) Store(level Level) {
	atomic.StoreInt32(&a.value, int32(level))
}

func (a *atomicLevel) Load() Level {
	return Level(atomic.LoadInt32(&a.value))
}

// levelGate is the per sink level filter: a fixed floor (for example WARN on
// error-only handlers) combined with the loader wide shared level.
type levelGate struct {
	floor  hclog.Level
	shared *atomicLevel
}

func (g levelGate) pass(level hclog.Level) bool {
	threshold := g.shared.Load().convertedLevel()
	if g.floor > threshold {
		threshold = g.floor
	}

	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return level >= threshold
}
