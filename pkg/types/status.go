package types

// Status records a human accept/reject decision attached to a finding.
type Status string

const (
	StatusAccept Status = "accept"
	StatusReject Status = "reject"
)

// Valid reports whether s is one of the recognized status values.
func (s Status) Valid() bool {
	switch s {
	case StatusAccept, StatusReject:
		return true
	default:
		return false
	}
}

// Statuses is an ordered, deduplicated list of status values attached to a
// finding. Findings may accumulate multiple reviewer decisions over time;
// Statuses preserves all of them rather than collapsing to a single verdict.
type Statuses []Status

// Add appends s if it is not already present.
func (ss Statuses) Add(s Status) Statuses {
	for _, existing := range ss {
		if existing == s {
			return ss
		}
	}
	return append(ss, s)
}

// Contains reports whether s is present.
func (ss Statuses) Contains(s Status) bool {
	for _, existing := range ss {
		if existing == s {
			return true
		}
	}
	return false
}
