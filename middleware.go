// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeaderName     = "X-Request-Id"
	correlationIDHeaderName = "X-Correlation-Id"
	processTimeHeaderName   = "X-Process-Time"
	forwardedForHeaderKey   = "X-Forwarded-For"
	realIPHeaderKey         = "X-Real-Ip"
	cfConnectingIPHeaderKey = "Cf-Connecting-Ip"
	trueClientIPHeaderKey   = "True-Client-Ip"

	// DefaultAccessMsgFormat is the template of the request-completed line.
	DefaultAccessMsgFormat = `[{request_id}] {client_host} {user_id} "{method} {url_path} HTTP/{http_version}" {status_code} {content_length}B {response_time}ms`
	// DefaultAccessDebugFormat is the template of the incoming-request line.
	DefaultAccessDebugFormat = `[{request_id}] {client_host} {user_id} "{method} {url_path} HTTP/{http_version}"`
)

// MiddlewareOptions customizes the HTTP access log middleware.
type MiddlewareOptions struct {
	// HasProxyHeaders trusts X-Real-IP / X-Forwarded-For for the client host.
	HasProxyHeaders bool
	// HasCFHeaders trusts the Cloudflare client headers; implies proxy headers.
	HasCFHeaders bool
	// MsgFormat overrides DefaultAccessMsgFormat.
	MsgFormat string
	// DebugFormat overrides DefaultAccessDebugFormat.
	DebugFormat string
	// ExcludedPrefixes lists URI prefixes that must not be logged.
	ExcludedPrefixes []string
}

// RequestMiddlewareLogger is a fiber middleware that emits one debug line
// when a request comes in and one completion line whose level tracks the
// response status code. Formatting failures degrade to a fallback message and
// never abort the request.
func RequestMiddlewareLogger(logger Logger, opts MiddlewareOptions) func(*fiber.Ctx) error {
	msgFormat := opts.MsgFormat
	if msgFormat == "" {
		msgFormat = DefaultAccessMsgFormat
	}
	debugFormat := opts.DebugFormat
	if debugFormat == "" {
		debugFormat = DefaultAccessDebugFormat
	}

	return func(c *fiber.Ctx) error {
		uri := string(c.Request().URI().RequestURI())
		for _, prefix := range opts.ExcludedPrefixes {
			if strings.HasPrefix(uri, prefix) {
				return c.Next()
			}
		}

		httpInfo := requestInfo(c, opts)
		requestID, _ := httpInfo["request_id"].(string)

		requestLogger := logger.WithName("request").With("requestId", requestID)
		c.SetUserContext(WithContext(c.UserContext(), requestLogger))

		requestLogger.Debug(renderAccessLine(debugFormat, httpInfo))

		start := time.Now()
		err := c.Next()

		responseTime := float64(time.Since(start).Microseconds()) / 1000
		httpInfo["response_time"] = roundMillis(responseTime)
		c.Set(processTimeHeaderName, strconv.FormatFloat(httpInfo["response_time"].(float64), 'f', 1, 64))
		if c.GetRespHeader(requestIDHeaderName) == "" {
			c.Set(requestIDHeaderName, requestID)
		}

		status, contentLength := responseDetails(c, err)
		httpInfo["status_code"] = status
		httpInfo["content_length"] = contentLength
		if userID := c.Locals("user_id"); userID != nil {
			httpInfo["user_id"] = fmt.Sprint(userID)
		}

		message := renderAccessLine(msgFormat, httpInfo)
		logAt(requestLogger, levelForStatus(status), message, httpInfoKey, map[string]any(httpInfo))

		return err
	}
}

// requestInfo collects the request side fields of the access log record.
func requestInfo(c *fiber.Ctx, opts MiddlewareOptions) map[string]any {
	requestID := c.Get(requestIDHeaderName)
	if requestID == "" {
		requestID = c.Get(correlationIDHeaderName)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	clientHost := c.IP()
	if opts.HasProxyHeaders || opts.HasCFHeaders {
		if realIP := c.Get(realIPHeaderKey); realIP != "" {
			clientHost = realIP
		} else if forwarded := c.Get(forwardedForHeaderKey); forwarded != "" {
			clientHost = strings.TrimSpace(strings.Split(forwarded, ",")[0])
		}
	}
	if opts.HasCFHeaders {
		if cfIP := c.Get(cfConnectingIPHeaderKey); cfIP != "" {
			clientHost = cfIP
		} else if trueIP := c.Get(trueClientIPHeaderKey); trueIP != "" {
			clientHost = trueIP
		}
	}

	urlPath := c.Path()
	if query := string(c.Request().URI().QueryString()); query != "" {
		urlPath = urlPath + "?" + query
	}

	userID := "-"
	if local := c.Locals("user_id"); local != nil {
		userID = fmt.Sprint(local)
	}

	return map[string]any{
		"request_id":   requestID,
		"client_host":  clientHost,
		"user_id":      userID,
		"method":       c.Method(),
		"url_path":     urlPath,
		"http_version": strings.TrimPrefix(string(c.Request().Header.Protocol()), "HTTP/"),
		"h_referer":    headerOrDash(c, fiber.HeaderReferer),
		"h_user_agent": headerOrDash(c, fiber.HeaderUserAgent),
	}
}

// responseDetails extracts the status code and body size, honoring fiber
// errors returned by downstream handlers like the engine's error handler does.
func responseDetails(c *fiber.Ctx, handlerErr error) (status, contentLength int) {
	status = c.Response().StatusCode()
	contentLength = len(c.Response().Body())

	if fiberErr, ok := handlerErr.(*fiber.Error); handlerErr != nil && ok {
		return fiberErr.Code, len(fiberErr.Error())
	}

	if header := c.GetRespHeader(fiber.HeaderContentLength); header != "" {
		if length, err := strconv.Atoi(header); err == nil {
			contentLength = length
		}
	}
	return status, contentLength
}

func headerOrDash(c *fiber.Ctx, key string) string {
	if value := c.Get(key); value != "" {
		return value
	}
	return "-"
}

// levelForStatus maps a response status code to the completion line level.
func levelForStatus(status int) Level {
	switch {
	case status < 200:
		return DEBUG
	case status < 400:
		return INFO
	case status < 500:
		return WARN
	default:
		return ERROR
	}
}

func logAt(logger Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case TRACE:
		logger.Trace(msg, args...)
	case DEBUG:
		logger.Debug(msg, args...)
	case WARN:
		logger.Warn(msg, args...)
	case ERROR:
		logger.Error(msg, args...)
	default:
		logger.Info(msg, args...)
	}
}

// renderAccessLine renders an access log template, falling back to a minimal
// line when the template references fields that are not available.
func renderAccessLine(format string, info map[string]any) string {
	line, err := renderMapTemplate(format, info)
	if err == nil {
		return line
	}

	method, _ := info["method"].(string)
	urlPath, _ := info["url_path"].(string)
	if status, found := info["status_code"]; found {
		return fmt.Sprintf("%s %s -> %v", method, urlPath, status)
	}
	return fmt.Sprintf("%s %s", method, urlPath)
}

func roundMillis(value float64) float64 {
	return float64(int64(value*10+0.5)) / 10
}
