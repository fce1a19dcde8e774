package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed portal call. UI code switches on the kind, never
// on the concrete HTTP status.
type Kind string

const (
	KindUnauthenticated       Kind = "Unauthenticated"
	KindForbidden             Kind = "Forbidden"
	KindNotFound              Kind = "NotFound"
	KindServerError           Kind = "ServerError"
	KindValidation            Kind = "ValidationError"
	KindNetworkUnreachable    Kind = "NetworkUnreachable"
	KindConfiguration         Kind = "ConfigurationError"
	KindUnexpectedContentType Kind = "UnexpectedContentType"
	// KindRequestFailed covers non-2xx statuses outside the 4xx/5xx ranges.
	KindRequestFailed Kind = "RequestFailed"
)

// genericMessages are used when the server body carries no readable message.
var genericMessages = map[Kind]string{
	KindUnauthenticated:       "session expired, please sign in again",
	KindForbidden:             "you do not have permission to perform this action",
	KindNotFound:              "the requested resource was not found",
	KindServerError:           "the server encountered an error, please try again later",
	KindValidation:            "the request was rejected by the server",
	KindNetworkUnreachable:    "network unreachable, check your connection",
	KindConfiguration:         "no endpoint found for this request",
	KindUnexpectedContentType: "unexpected content type in server response",
	KindRequestFailed:         "the request failed",
}

// GenericMessage returns the fallback message for a kind.
func GenericMessage(kind Kind) string {
	if msg, ok := genericMessages[kind]; ok {
		return msg
	}
	return "an unexpected error occurred"
}

// Error is the single failure type surfaced by the client.
// Callers should prefer KindOf / IsKind over asserting on fields.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 when no response was received
	Message string // human-readable, safe to show to the user
	Op      string // "GET /tutor/courses/"
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an error of the given kind, defaulting the message.
func NewError(kind Kind, op, message string, cause error) *Error {
	if message == "" {
		message = GenericMessage(kind)
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// KindOf returns the kind of err, or "" when err is not a client error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsKind reports whether err is a client error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// kindForStatus maps a non-2xx status to its kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindValidation
	default:
		return KindRequestFailed
	}
}
