// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadyInitialized reports an Init call after the process-wide logger
	// has been built.
	ErrAlreadyInitialized = errors.New("default logger already initialized")
)

var (
	defaultMu     sync.Mutex
	defaultLoader *Loader
	defaultLogger Logger
)

// Default returns the process-wide logger, initializing it on first use from
// the default configuration sources. When the BEANS_LOGGING_DISABLE_DEFAULT
// environment variable is truthy, or initialization fails, a null logger is
// returned and no handler is registered.
func Default() Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultLogger != nil {
		return defaultLogger
	}

	envVars, err := loadEnvOverrides()
	if err == nil && envVars.disableDefault() {
		defaultLogger = nullLogger
		return defaultLogger
	}

	loader := NewLoader()
	logger, err := loader.Load()
	if err != nil {
		return nullLogger
	}

	defaultLoader = loader
	defaultLogger = logger
	return defaultLogger
}

// DefaultLoader returns the loader backing the process-wide logger, or nil
// when the default logger has not been initialized through Init or Default.
func DefaultLoader() *Loader {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLoader
}

// Init explicitly builds the process-wide logger with the given options,
// replacing the implicit initialization. It fails when the default logger has
// already been built.
func Init(opts ...Option) (Logger, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultLogger != nil {
		return nil, ErrAlreadyInitialized
	}

	loader := NewLoader(opts...)
	logger, err := loader.Load()
	if err != nil {
		return nil, err
	}

	defaultLoader = loader
	defaultLogger = logger
	return logger, nil
}
