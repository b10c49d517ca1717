// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"fmt"
	"time"
)

type (
	// ConfigurationError wraps any failure while loading one
	// configuration source for one environment.
	ConfigurationError struct {
		Path  string
		Env   string
		Cause error
	}

	// TimeoutError reports a load that exceeded the configured load
	// timeout.
	TimeoutError struct {
		Path    string
		Timeout time.Duration
	}
)

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	if e.Env != "" {
		return fmt.Sprintf("load %s (env %s): %v", e.Path, e.Env, e.Cause)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As traversal.
func (e *ConfigurationError) Unwrap() error { return e.Cause }

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("load %s timed out after %s", e.Path, e.Timeout)
}
