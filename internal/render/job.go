package render

import "strings"

// Status is the normalized state of a render job.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is the locally observed state of one render job. It is never persisted.
type Job struct {
	ID        string
	Status    Status
	RawStatus string
	ResultURL string
	Polls     int
}

// normalizeStatus maps the service's status vocabulary onto Status.
func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "done":
		return StatusDone
	case "error", "rejected":
		return StatusError
	default:
		return StatusPending
	}
}
