package showroom

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOrMalformedCookies is returned by BuildSession when no name=value pair could be parsed.
	ErrEmptyOrMalformedCookies = errors.New("showroom: no cookies could be parsed from the cookie string")
	// ErrMissingCsrfToken is returned by Scanner.Scan when the page carries no csrf_token input.
	ErrMissingCsrfToken = errors.New("showroom: csrf token not found")
	// ErrLoginRequired means the platform answered with its login page.
	ErrLoginRequired = errors.New("showroom: login required")
	// ErrSessionInvalid matches every *SessionInvalidError.
	ErrSessionInvalid = errors.New("showroom: session invalid")
)

type SessionInvalidReason int

const (
	// REASON_LOGIN_WALL means the admin page was replaced by the login page, the cookie has expired.
	REASON_LOGIN_WALL SessionInvalidReason = iota
	// REASON_TOKEN_MISSING means there was neither a token nor a login marker, the login state is
	// unknown and the page markup has likely changed.
	REASON_TOKEN_MISSING
)

func (r SessionInvalidReason) String() string {
	switch r {
	case REASON_LOGIN_WALL:
		return "login wall"
	case REASON_TOKEN_MISSING:
		return "token missing"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// SessionInvalidError is returned when the admin page cannot be trusted as logged in.
type SessionInvalidError struct {
	Reason SessionInvalidReason
	Url    string
}

func (e *SessionInvalidError) Error() string {
	switch e.Reason {
	case REASON_LOGIN_WALL:
		return fmt.Sprintf("showroom: session invalid: cookie expired, got login page at %s", e.Url)
	default:
		return fmt.Sprintf("showroom: session invalid: no csrf token and no login marker at %s, page structure may have changed", e.Url)
	}
}

func (e *SessionInvalidError) Is(target error) bool {
	return target == ErrSessionInvalid
}

func (e *SessionInvalidError) Unwrap() error {
	if e.Reason == REASON_LOGIN_WALL {
		return ErrLoginRequired
	}
	return ErrMissingCsrfToken
}

// TransportError is a failed request, either the request itself failed or the terminal
// status was not 2xx/3xx.
type TransportError struct {
	Method string
	Url    string
	// Status is 0 when no response was received.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("showroom: %s %s: unexpected status %d", e.Method, e.Url, e.Status)
	}
	return fmt.Sprintf("showroom: %s %s: %s", e.Method, e.Url, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExtractionError describes a single approval form that could not be read.
type ExtractionError struct {
	// Index is the position of the form among the approval forms on the page.
	Index int
	Field string
	Value string
}

func (e *ExtractionError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("showroom: approval form %d: missing %s", e.Index, e.Field)
	}
	return fmt.Sprintf("showroom: approval form %d: malformed %s %q", e.Index, e.Field, e.Value)
}
