package util

import (
	"errors"
	"fmt"
	"net/http"
)

// SessionError standardizes client-side errors raised by the session kit.
type SessionError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Status  int
	Err     error
}

// ErrorKind classifies a SessionError.
type ErrorKind string

const (
	// KindAuth covers bad credentials or a missing token on login/refresh.
	KindAuth ErrorKind = "AUTH"
	// KindRefreshFailure covers an absent or rejected refresh token.
	KindRefreshFailure ErrorKind = "REFRESH_FAILURE"
	// KindBusiness covers a non-success application code from the backend.
	KindBusiness ErrorKind = "BUSINESS"
	// KindTransport covers network failures and non-2xx transport statuses.
	KindTransport ErrorKind = "TRANSPORT"
	// KindConfiguration covers HTML payloads where JSON was expected.
	KindConfiguration ErrorKind = "CONFIGURATION"
)

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewAuthError constructs an authentication failure.
func NewAuthError(message string) error {
	return &SessionError{Kind: KindAuth, Code: "AUTH_FAILED", Message: message, Status: http.StatusUnauthorized}
}

// NewRefreshFailure constructs a refresh failure that escalates to logout.
func NewRefreshFailure(message string, err error) error {
	return &SessionError{Kind: KindRefreshFailure, Code: "REFRESH_FAILED", Message: message, Status: http.StatusUnauthorized, Err: err}
}

// NewBusinessError carries a server-supplied application code and message.
func NewBusinessError(code, message string) error {
	return &SessionError{Kind: KindBusiness, Code: code, Message: message, Status: http.StatusOK}
}

// NewTransportError maps a transport status to a user-facing message.
func NewTransportError(status int, message string, err error) error {
	return &SessionError{Kind: KindTransport, Code: "TRANSPORT", Message: message, Status: status, Err: err}
}

// NewConfigurationError flags an HTML payload where JSON was expected.
func NewConfigurationError(message string) error {
	return &SessionError{Kind: KindConfiguration, Code: "BAD_GATEWAY_CONFIG", Message: message, Status: http.StatusBadGateway}
}

// AsSessionError extracts a SessionError from an error chain.
func AsSessionError(err error) (*SessionError, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsKind reports whether the error chain contains a SessionError of the kind.
func IsKind(err error, kind ErrorKind) bool {
	if se, ok := AsSessionError(err); ok {
		return se.Kind == kind
	}
	return false
}

// TransportMessage is the fixed table of user-facing messages by status code.
func TransportMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "request was rejected by the server"
	case http.StatusUnauthorized:
		return "session expired, please sign in again"
	case http.StatusForbidden:
		return "you do not have permission for this action"
	case http.StatusNotFound:
		return "requested resource was not found"
	case http.StatusRequestTimeout:
		return "request timed out, please retry"
	case http.StatusTooManyRequests:
		return "too many requests, please slow down"
	case http.StatusInternalServerError:
		return "server error, please try again later"
	case http.StatusBadGateway:
		return "upstream gateway error"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	case http.StatusGatewayTimeout:
		return "upstream gateway timed out"
	default:
		return fmt.Sprintf("request failed with status %d", status)
	}
}
