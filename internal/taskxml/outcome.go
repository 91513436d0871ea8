package taskxml

import "fmt"

// Status classifies the result of one best-effort patch.
type Status int

const (
	StatusApplied Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome records what happened to one patch. Skipped carries a reason,
// Failed carries the underlying error. Neither is ever returned as an error
// from the scheduler: patches are embellishments on an already created task.
type Outcome struct {
	Patch  string
	Status Status
	Reason string
	Err    error
}

func Applied(patch string) Outcome {
	return Outcome{Patch: patch, Status: StatusApplied}
}

func Skipped(patch, reason string) Outcome {
	return Outcome{Patch: patch, Status: StatusSkipped, Reason: reason}
}

func Failed(patch string, err error) Outcome {
	return Outcome{Patch: patch, Status: StatusFailed, Err: err}
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSkipped:
		return fmt.Sprintf("%s: skipped (%s)", o.Patch, o.Reason)
	case StatusFailed:
		return fmt.Sprintf("%s: failed: %v", o.Patch, o.Err)
	default:
		return o.Patch + ": " + o.Status.String()
	}
}
