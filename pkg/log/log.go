/*
Copyright The Meridian Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log contains the logging subsystem of meridian
package log

import (
	"context"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
)

// Log level names accepted by the --log-level flag
const (
	ErrorLevelString   = "error"
	WarningLevelString = "warning"
	InfoLevelString    = "info"
	DebugLevelString   = "debug"
	TraceLevelString   = "trace"
)

// Log levels mapped onto zap levels. Trace and debug both map below
// zap debug so that -vv style filtering keeps working.
const (
	ErrorLevel   = zapcore.ErrorLevel
	WarningLevel = zapcore.WarnLevel
	InfoLevel    = zapcore.InfoLevel
	DebugLevel   = zapcore.Level(-2)
	TraceLevel   = zapcore.Level(-4)

	// DefaultLevel is used when no --log-level is given
	DefaultLevel = InfoLevel

	// DefaultLevelString is the name of DefaultLevel
	DefaultLevelString = InfoLevelString
)

// Log is the logger used by every package of meridian
var Log = logr.Discard()

// SetLogger sets the backing logr implementation
func SetLogger(logger logr.Logger) {
	Log = logger
}

// FromContext returns the logger stored in ctx, falling back to the
// package-level one
func FromContext(ctx context.Context) logr.Logger {
	if logger, err := logr.FromContext(ctx); err == nil {
		return logger
	}
	return Log
}

// IntoContext injects a logger into a context
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// Info logs a message at info level with the package-level logger
func Info(msg string, keysAndValues ...interface{}) {
	Log.Info(msg, keysAndValues...)
}

// Debug logs a message at debug level with the package-level logger
func Debug(msg string, keysAndValues ...interface{}) {
	Log.V(1).Info(msg, keysAndValues...)
}

// Error logs an error with the package-level logger
func Error(err error, msg string, keysAndValues ...interface{}) {
	Log.Error(err, msg, keysAndValues...)
}
