// Package integration holds the error taxonomy shared by provider adapters,
// the inbox consumer and the provider HTTP clients.
package integration

import (
	"errors"
	"fmt"
)

// ConfigurationError reports missing or invalid integration settings for a user,
// typically stored credentials. It is fatal for a job and never retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s integration is not configured: %s", e.Provider, e.Reason)
}

// TransportError is returned when a provider call fails on the network or
// answers with a non-2xx status.
type TransportError struct {
	Op         string // "pull" or "push"
	StatusCode int    // 0 when the request never got a response
	Message    string // provider supplied error message, if any
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s failed (status %d)", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return e.Op + " failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PartialDomainFailure wraps the error of a single push data domain.
// It is logged and the domain is left out of the payload.
type PartialDomainFailure struct {
	Domain string
	Err    error
}

func (e *PartialDomainFailure) Error() string {
	return fmt.Sprintf("push domain %s unavailable: %v", e.Domain, e.Err)
}

func (e *PartialDomainFailure) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is, or wraps, a ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}
