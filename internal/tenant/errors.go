package tenant

import "errors"

var (
	// ErrMissingContext is returned when a web request carries no server name.
	ErrMissingContext = errors.New("cannot determine tenant")
	// ErrUnrecognizedHost is returned when the server name is outside the hosting domain.
	ErrUnrecognizedHost = errors.New("unexpected routing")
	// ErrInvalidTenant is returned when the derived tenant identifier is empty or malformed.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
	// ErrUnknownTenant is returned when the tenant has no directory under the web root.
	ErrUnknownTenant = errors.New("unknown tenant")
)
