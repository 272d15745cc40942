package provider

import (
	"errors"
	"fmt"
)

// The error vocabulary for provider-facing calls. Callers classify with
// errors.As (or the helpers below), never by string comparison.

// UnlinkedError reports that a provider permanently revoked the grant.
// By the time it is returned the owning user has already been deleted,
// linked accounts included.
type UnlinkedError struct {
	Provider string
}

func (e *UnlinkedError) Error() string {
	return fmt.Sprintf("%s account was unlinked: grant revoked by provider", e.Provider)
}

// UnauthorizedError reports a 401 from a non-refresh provider call.
// Recoverable exactly once via a forced refresh.
type UnauthorizedError struct {
	Provider string
	Endpoint string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s rejected the access token at %s", e.Provider, e.Endpoint)
}

// ProtocolError carries any other non-2xx provider response
type ProtocolError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.Status, e.Body)
}

// RejectionError reports a fetched profile that fails a business rule,
// e.g. a bot or deleted osu! account
type RejectionError struct {
	Provider string
	Reason   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s profile rejected: %s", e.Provider, e.Reason)
}

// PayloadError reports a malformed provider payload
type PayloadError struct {
	Provider string
	Err      error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Provider, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// IsUnlinked reports whether err carries an UnlinkedError
func IsUnlinked(err error) bool {
	var target *UnlinkedError
	return errors.As(err, &target)
}

// IsUnauthorized reports whether err carries an UnauthorizedError
func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}
