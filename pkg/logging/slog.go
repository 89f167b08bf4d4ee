// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package logging configures the process-wide slog logger for the
// playout binaries and carries the HTTP access-log middleware and the
// runtime log-level endpoint both servers mount.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dusted-go/logging/prettylog"
	"github.com/go-chi/chi/v5/middleware"
)

// Output formats accepted by InitSlog.
const (
	LogText    string = "text"
	LogJSON    string = "json"
	LogPretty  string = "pretty"
	LogDiscard string = "discard"
)

// LogFormats lists the accepted log formats, in help-text order.
var LogFormats = []string{LogText, LogJSON, LogPretty, LogDiscard}

// LogLevels lists the accepted log levels.
var LogLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// levelVar backs the runtime-adjustable level shared by every handler
// InitSlog builds. The /loglevel endpoint writes through it.
var levelVar = new(slog.LevelVar)

// InitSlog installs the default slog logger. format picks the handler,
// level its initial threshold; both can be adjusted later through
// SetLogLevel and the /loglevel endpoint.
func InitSlog(level, format string) error {
	var h slog.Handler
	opts := &slog.HandlerOptions{Level: levelVar}
	switch format {
	case LogText:
		h = slog.NewTextHandler(os.Stdout, opts)
	case LogJSON:
		h = slog.NewJSONHandler(os.Stdout, opts)
	case LogPretty:
		h = prettylog.NewHandler(opts)
	case LogDiscard:
		h = slog.NewTextHandler(io.Discard, opts)
	default:
		return fmt.Errorf("log format %q not known, use one of %s",
			format, strings.Join(LogFormats, ", "))
	}
	slog.SetDefault(slog.New(h))
	return SetLogLevel(level)
}

// SetLogLevel changes the threshold of every handler built by InitSlog.
// An empty level means INFO.
func SetLogLevel(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return err
	}
	levelVar.Set(l)
	return nil
}

// LogLevel reports the current threshold.
func LogLevel() string {
	return levelVar.Level().String()
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log level %q not known, use one of %s",
		level, strings.Join(LogLevels, ", "))
}

// WithChannel scopes a logger to one playout channel. Per-channel
// components take their logger through this so every line they emit
// carries the channel id.
func WithChannel(l *slog.Logger, channelID string) *slog.Logger {
	return l.With(slog.String("channel", channelID))
}

// AccessLog logs one line per completed request and turns panics into
// 500s with a recorded stack.
func AccessLog(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				if rec := recover(); rec != nil {
					l.Error("handler panic",
						"request_id", GetRequestID(r),
						"url", r.URL.Path,
						"recover_info", rec,
						"debug_stack", string(debug.Stack()))
					http.Error(ww, http.StatusText(http.StatusInternalServerError),
						http.StatusInternalServerError)
				}
				line := l.With(
					"request_id", GetRequestID(r),
					"remote_ip", r.RemoteAddr,
					"method", r.Method,
					"url", r.URL.Path,
					"status", ww.Status(),
					"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
					"bytes_out", ww.BytesWritten())
				if in := r.Header.Get("Content-Length"); in != "" {
					line = line.With("bytes_in", in)
				}
				line.Info("request")
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

// GetRequestID returns the chi request id, "-" when absent.
func GetRequestID(r *http.Request) string {
	id, ok := r.Context().Value(middleware.RequestIDKey).(string)
	if !ok {
		return "-"
	}
	return id
}
