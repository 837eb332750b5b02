package publish

import "fmt"

// PublishError is returned when authentication fails or the post is rejected.
type PublishError struct {
	Message    string
	StatusCode int
	Cause      error
}

func (e *PublishError) Error() string {
	msg := "publish failed: " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *PublishError) Unwrap() error {
	return e.Cause
}

const msgAuthFailed = "auth failed"

// IsAuthFailure reports whether both cookie and credential authentication failed.
func (e *PublishError) IsAuthFailure() bool {
	return e.Message == msgAuthFailed
}
