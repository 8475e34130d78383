package api

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies backend failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthRejected is a 401: the credential is missing, expired or revoked.
	KindAuthRejected
	// KindValidationFailed is any other 4xx carrying a user-facing message.
	KindValidationFailed
	// KindTransient covers network failures, timeouts and 5xx responses.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindAuthRejected:
		return "auth-rejected"
	case KindValidationFailed:
		return "validation-failed"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is returned by every Client call that did not succeed.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s (%d %s)", e.Op, e.Message, e.Status, e.Kind)
	case e.Message != "":
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
	default:
		return fmt.Sprintf("%s: status %d (%s)", e.Op, e.Status, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsAuthRejected reports whether err is a 401 from the backend.
func IsAuthRejected(err error) bool {
	return KindOf(err) == KindAuthRejected
}

// UserMessage returns the text to show for err. Server-provided messages are
// used for auth and validation failures; everything else gets fallback.
func UserMessage(err error, fallback string) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return fallback
	}
	switch apiErr.Kind {
	case KindAuthRejected, KindValidationFailed:
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return fallback
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthRejected
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 400 && status < 500:
		return KindValidationFailed
	default:
		return KindTransient
	}
}
