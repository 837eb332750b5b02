package render

import "fmt"

// RenderError is returned when a render job cannot be submitted, reports an
// error, or does not finish in time.
type RenderError struct {
	Message string
	JobID   string
	Cause   error
}

func (e *RenderError) Error() string {
	msg := "render failed: " + e.Message
	if e.JobID != "" {
		msg = fmt.Sprintf("render job %s failed: %s", e.JobID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether the job was abandoned because the wait budget ran out.
func (e *RenderError) IsTimeout() bool {
	return e.Message == msgTimeout
}

const msgTimeout = "timeout"
