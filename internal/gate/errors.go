package gate

import "errors"

var (
	// ErrInvalidAddress is returned when an address cannot be parsed.
	ErrInvalidAddress = errors.New("invalid email address")

	// ErrMXLookup is returned when the mail exchanger lookup fails for a
	// reason other than a missing domain.
	ErrMXLookup = errors.New("mx lookup failed")
)
