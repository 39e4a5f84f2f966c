// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
)

const (
	defaultStreamFormat = "[{time} | {level_short} | {name}]: {message}"
	defaultFileFormat   = "[{time} | {level_short} | {name}]: {message}"

	timeLayout = "2006-01-02 15:04:05.000 Z07:00"
)

// record is the normalized shape of a log event handed to the sinks.
type record struct {
	time  time.Time
	name  string
	level hclog.Level
	msg   string
	args  []interface{}
}

var levelShortNames = map[hclog.Level]string{
	hclog.Trace: "TRACE",
	hclog.Debug: "DEBUG",
	hclog.Info:  "INFO",
	hclog.Warn:  "WARN",
	hclog.Error: "ERROR",
}

var levelIcons = map[hclog.Level]string{
	hclog.Trace: "✏️",
	hclog.Debug: "🐞",
	hclog.Info:  "ℹ️",
	hclog.Warn:  "⚠️",
	hclog.Error: "❌",
}

var levelColorAttrs = map[hclog.Level]color.Attribute{
	hclog.Trace: color.FgHiCyan,
	hclog.Debug: color.FgHiMagenta,
	hclog.Info:  color.FgHiGreen,
	hclog.Warn:  color.FgHiYellow,
	hclog.Error: color.FgHiRed,
}

func levelShort(level hclog.Level) string {
	if name, found := levelShortNames[level]; found {
		return name
	}
	return levelShortNames[hclog.Info]
}

func levelIcon(level hclog.Level) string {
	if icon, found := levelIcons[level]; found {
		return icon
	}
	return levelIcons[hclog.Info]
}

// knownPlaceholders lists the tokens allowed inside a format_str template.
var knownPlaceholders = map[string]struct{}{
	"time":        {},
	"level":       {},
	"level_short": {},
	"level_icon":  {},
	"name":        {},
	"message":     {},
}

// validateFormat checks that a format_str template only references known
// placeholders and always contains {message}.
func validateFormat(format string) error {
	if strings.TrimSpace(format) == "" {
		return fmt.Errorf("format must not be empty")
	}
	if !strings.Contains(format, "{message}") {
		return fmt.Errorf("format must contain the {message} placeholder")
	}

	for _, token := range formatTokens(format) {
		if _, found := knownPlaceholders[token]; !found {
			return fmt.Errorf("unknown placeholder {%s}", token)
		}
	}
	return nil
}

// formatTokens extracts the placeholder names referenced by a template.
func formatTokens(format string) []string {
	var tokens []string
	for {
		start := strings.IndexByte(format, '{')
		if start < 0 {
			return tokens
		}
		end := strings.IndexByte(format[start:], '}')
		if end < 0 {
			return tokens
		}
		tokens = append(tokens, format[start+1:start+end])
		format = format[start+end+1:]
	}
}

// lineFormatter renders records according to a format_str template, hclog
// style key=value pairs appended for any structured arguments. Each formatter
// owns its color values, enabled once at construction: render must never
// mutate shared state since sinks on different loaders run concurrently.
type lineFormatter struct {
	format string
	colors map[hclog.Level]*color.Color
}

func newLineFormatter(format string, useColor bool) *lineFormatter {
	f := &lineFormatter{format: format}
	if useColor {
		f.colors = make(map[hclog.Level]*color.Color, len(levelColorAttrs))
		for level, attr := range levelColorAttrs {
			c := color.New(attr)
			c.EnableColor()
			f.colors[level] = c
		}
	}
	return f
}

func (f *lineFormatter) render(rec record) string {
	level := rec.level
	msg := rec.msg
	levelName := strings.ToUpper(level.String())
	short := levelShort(level)
	if c, found := f.colors[level]; found {
		levelName = c.Sprint(levelName)
		short = c.Sprint(short)
		msg = c.Sprint(msg)
	}

	replacer := strings.NewReplacer(
		"{time}", rec.time.Format(timeLayout),
		"{level}", levelName,
		"{level_short}", fmt.Sprintf("%-5s", short),
		"{level_icon}", levelIcon(level),
		"{name}", rec.name,
		"{message}", msg,
	)

	var builder strings.Builder
	builder.WriteString(replacer.Replace(f.format))
	appendArgs(&builder, rec.args)
	builder.WriteByte('\n')
	return builder.String()
}

// appendArgs writes structured arguments as key=value pairs, matching the
// engine's own text output.
func appendArgs(builder *strings.Builder, args []interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		builder.WriteString(fmt.Sprintf(" %v=%v", args[i], args[i+1]))
	}
	if len(args)%2 != 0 {
		builder.WriteString(fmt.Sprintf(" %v=%v", hclog.MissingKey, args[len(args)-1]))
	}
}
