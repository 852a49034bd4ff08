package scraper

import (
	"errors"
	"fmt"

	"github.com/jgoulah/cpauscraper/internal/usage"
)

// ConnectionError is a transport failure (DNS, TLS, timeout, refused).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthError represents an authentication failure: rejected credentials, an
// unreadable login response, or a session the portal no longer accepts.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// AuthenticationError is the name the rest of the package uses for AuthError.
type AuthenticationError = AuthError

// APIError is an unexpected status or malformed envelope from an
// authenticated portal call.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ProtocolError means a portal page no longer carries what the request
// contract expects, such as its anti-forgery token.
type ProtocolError struct {
	Page    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s page: %s", e.Page, e.Message)
}

// MeterNotFoundError is returned when no active meter matches.
type MeterNotFoundError struct {
	MeterNumber string
}

func (e *MeterNotFoundError) Error() string {
	if e.MeterNumber == "" {
		return "no active meters found"
	}
	return fmt.Sprintf("meter %s not found", e.MeterNumber)
}

// ValidationError reports a date range that violates ordering or the embargo.
type ValidationError = usage.ValidationError

// IsAuthFailure reports whether err stems from an authentication failure.
func IsAuthFailure(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
