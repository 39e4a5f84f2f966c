// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// HandlerFileHTTP is the HTTP access log file handler name.
	HandlerFileHTTP = "FILE.HTTP"
	// HandlerFileHTTPErr is the error-only HTTP access log file handler name.
	HandlerFileHTTPErr = "FILE.HTTP_ERR"
	// HandlerFileJSONHTTP is the JSON HTTP access log file handler name.
	HandlerFileJSONHTTP = "FILE.JSON.HTTP"
	// HandlerFileJSONHTTPErr is the error-only JSON HTTP access log file handler name.
	HandlerFileJSONHTTPErr = "FILE.JSON.HTTP_ERR"
)

// accessLineFormat follows the combined log format extended with the request
// id, the user id and the response time.
const accessLineFormat = `{client_host} {request_id} {user_id} [{datetime}] "{method} {url_path} HTTP/{http_version}" {status_code} {content_length} "{h_referer}" "{h_user_agent}" {response_time}`

// AddHTTPFileHandlers registers the plain text HTTP access log handlers on a
// loaded loader: one for every request and one for requests that completed
// with a warning or error status. Only records produced by the HTTP
// middleware reach these files.
func AddHTTPFileHandlers(loader *Loader) error {
	if err := loader.AddCustomHandler(HandlerSpec{
		Name:     HandlerFileHTTP,
		Path:     filepath.Join("http", "{app_name}.http.access.log"),
		Level:    TRACE,
		HTTPOnly: true,
	}); err != nil {
		return err
	}

	return loader.AddCustomHandler(HandlerSpec{
		Name:     HandlerFileHTTPErr,
		Path:     filepath.Join("http", "{app_name}.http.err.log"),
		Level:    WARN,
		HTTPOnly: true,
	})
}

// AddHTTPJSONFileHandlers registers the JSON HTTP access log handlers on a
// loaded loader, mirroring AddHTTPFileHandlers.
func AddHTTPJSONFileHandlers(loader *Loader) error {
	if err := loader.AddCustomHandler(HandlerSpec{
		Name:      HandlerFileJSONHTTP,
		Path:      filepath.Join("http.json", "{app_name}.json.http.access.log"),
		Level:     TRACE,
		JSON:      true,
		UseCustom: true,
		HTTPOnly:  true,
	}); err != nil {
		return err
	}

	return loader.AddCustomHandler(HandlerSpec{
		Name:      HandlerFileJSONHTTPErr,
		Path:      filepath.Join("http.json", "{app_name}.json.http.err.log"),
		Level:     WARN,
		JSON:      true,
		UseCustom: true,
		HTTPOnly:  true,
	})
}

// renderHTTPAccessLine renders an http_info payload as a text access log line.
func renderHTTPAccessLine(info map[string]any, now time.Time) string {
	if _, found := info["datetime"]; !found {
		info["datetime"] = now.Format(time.RFC3339)
	}

	line, err := renderMapTemplate(accessLineFormat, info)
	if err != nil {
		line = fmt.Sprintf("%v %v -> %v", info["method"], info["url_path"], info["status_code"])
	}
	return line + "\n"
}

// renderMapTemplate substitutes every {key} token of format with the matching
// value from data. A token without a matching key is an error: callers decide
// how to degrade.
func renderMapTemplate(format string, data map[string]any) (string, error) {
	var builder strings.Builder
	for {
		start := strings.IndexByte(format, '{')
		if start < 0 {
			builder.WriteString(format)
			return builder.String(), nil
		}
		end := strings.IndexByte(format[start:], '}')
		if end < 0 {
			builder.WriteString(format)
			return builder.String(), nil
		}

		builder.WriteString(format[:start])
		key := format[start+1 : start+end]
		value, found := data[key]
		if !found {
			return "", fmt.Errorf("unknown access log field %q", key)
		}
		builder.WriteString(formatAccessValue(value))
		format = format[start+end+1:]
	}
}

func formatAccessValue(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', 1, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
