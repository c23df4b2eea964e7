// Package logging provides the ambient logging setup shared by every
// package in this module, built the same way go-lynx-lynx's app/logger.go
// builds its Kratos logger: a log.Logger decorated with standard fields,
// wrapped in a *log.Helper per component.
package logging

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

var defaultLogger log.Logger = log.With(
	log.NewStdLogger(os.Stdout),
	"timestamp", log.DefaultTimestamp,
	"caller", log.DefaultCaller,
	"service", "pluginrt",
)

// Default returns the package-wide base logger. Components that need a
// distinct name should call Helper(name) instead of using this directly.
func Default() log.Logger {
	return defaultLogger
}

// SetDefault overrides the package-wide base logger, for hosts that want
// to route pluginrt's logs into their own sink.
func SetDefault(l log.Logger) {
	defaultLogger = l
}

// Helper returns a *log.Helper for component, prefixed via a "component"
// field the way go-lynx scopes its per-plugin helpers.
func Helper(component string) *log.Helper {
	return log.NewHelper(log.With(defaultLogger, "component", component))
}
