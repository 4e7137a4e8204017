// Package access drives the kiosk from a camera and turns a verification
// into a structured result for callers that need a yes or no answer.
package access

import (
	"errors"
	"time"
)

// AuthResult represents the result of a verification.
type AuthResult struct {
	Success  bool
	Error    error
	Duration time.Duration
	Attempts int
	Reason   string
	Username string
}

// ErrorCode represents a specific verification error type.
type ErrorCode string

const (
	ErrCodeNoFace        ErrorCode = "NO_FACE"
	ErrCodeLiveness      ErrorCode = "LIVENESS_FAILED"
	ErrCodeNotRecognized ErrorCode = "NOT_RECOGNIZED"
	ErrCodeCamera        ErrorCode = "CAMERA_ERROR"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
	ErrCodeNotEnrolled   ErrorCode = "NOT_ENROLLED"
	ErrCodeCancelled     ErrorCode = "CANCELLED"
)

// AuthError is a structured verification error.
type AuthError struct {
	Code    ErrorCode
	Message string
	Retry   bool
	Details map[string]interface{}
}

func (e *AuthError) Error() string {
	return e.Message
}

// User-friendly error messages
var errorMessages = map[ErrorCode]string{
	ErrCodeNoFace:        "Please position your face in front of the camera",
	ErrCodeLiveness:      "Liveness check failed. Spoofing detected",
	ErrCodeNotRecognized: "Face not recognized",
	ErrCodeCamera:        "Camera error. Please check your camera connection",
	ErrCodeTimeout:       "Verification timed out before the flash check finished",
	ErrCodeNotEnrolled:   "No users enrolled. Enroll a user first",
	ErrCodeCancelled:     "Verification cancelled",
}

// GetErrorMessage returns a user-friendly message for an error code.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Access denied"
}

// NewAuthError creates a new verification error.
func NewAuthError(code ErrorCode, retry bool) *AuthError {
	return &AuthError{
		Code:    code,
		Message: GetErrorMessage(code),
		Retry:   retry,
		Details: make(map[string]interface{}),
	}
}

// CodeOf returns the code of an AuthError anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code, true
	}
	return "", false
}

// ErrTooManyReadFailures is returned when the camera keeps failing.
var ErrTooManyReadFailures = errors.New("access: too many consecutive camera read failures")
