// Package neterr classifies transport failures into a small taxonomy with
// canned user-facing messages, and retries operations with exponential backoff.
package neterr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

type Kind int

const (
	Unknown Kind = iota
	NoNetwork
	Timeout
	ServerError
	ClientError
	NotFound
	SaveFailed
	ParseError
)

func (k Kind) String() string {
	switch k {
	case NoNetwork:
		return "NO_NETWORK"
	case Timeout:
		return "TIMEOUT"
	case ServerError:
		return "SERVER_ERROR"
	case ClientError:
		return "CLIENT_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case SaveFailed:
		return "SAVE_FAILED"
	case ParseError:
		return "PARSE_ERROR"
	default:
		return "UNKNOWN"
	}
}

var messages = map[Kind]string{
	NoNetwork:   "No internet connection. Please check your network settings and try again.",
	Timeout:     "Connection timed out. The server might be busy, please try again later.",
	ServerError: "Server error. Our team has been notified and is working on a fix.",
	ClientError: "Something went wrong with your request. Please try again.",
	NotFound:    "The requested item could not be found.",
	SaveFailed:  "Your changes could not be saved. Please try again.",
	ParseError:  "Received unexpected data from the server.",
	Unknown:     "An unexpected error occurred. Please try again later.",
}

// Message returns the user-facing text for a kind.
func Message(k Kind) string {
	if m, ok := messages[k]; ok {
		return m
	}
	return messages[Unknown]
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code   int
	Method string
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// WithKind tags err so Classify reports k for it.
func WithKind(err error, k Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: k, err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Error is the result of a failed Retry.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps an error to a Kind. nil maps to Unknown.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}

	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusNotFound:
			return NotFound
		case se.Code >= 500:
			return ServerError
		case se.Code >= 400:
			return ClientError
		}
		return Unknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return Timeout
		}
		return NoNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return NoNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return NoNetwork
	}
	return Unknown
}

// UserMessage is Message(Classify(err)).
func UserMessage(err error) string {
	return Message(Classify(err))
}
