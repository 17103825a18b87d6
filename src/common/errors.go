package common

import "fmt"

// ErrKind classifies an operation failure. The kind decides how callers react:
// transients are retried, action failures are retried until a deadline,
// protocol violations abort the run, and usage errors are returned to the
// caller immediately.
type ErrKind uint32

const (
	// Transient is an observation that failed for a reason that does not say
	// anything about the cluster, like a short network glitch.
	Transient ErrKind = iota
	// ActionFailed is a start/stop script or admin command that exited
	// non-zero.
	ActionFailed
	// DeadlineExhausted is a convergence loop that ran out of time.
	DeadlineExhausted
	// ProtocolViolation is a broken chain invariant: epoch regression,
	// validator set mismatch, or a node falling too far behind.
	ProtocolViolation
	// UsageError is a caller mistake: unknown node, invalid target, missing
	// script.
	UsageError
)

// OpError ties a failure kind to the operation that hit it.
type OpError struct {
	op     string
	kind   ErrKind
	detail string
}

// NewOpError ...
func NewOpError(op string, kind ErrKind, detail string) OpError {
	return OpError{
		op:     op,
		kind:   kind,
		detail: detail,
	}
}

// NewOpErrorf ...
func NewOpErrorf(op string, kind ErrKind, format string, args ...interface{}) OpError {
	return NewOpError(op, kind, fmt.Sprintf(format, args...))
}

// Kind returns the failure classification.
func (e OpError) Kind() ErrKind {
	return e.kind
}

// Error ...
func (e OpError) Error() string {
	m := ""
	switch e.kind {
	case Transient:
		m = "Transient"
	case ActionFailed:
		m = "Action Failed"
	case DeadlineExhausted:
		m = "Deadline Exhausted"
	case ProtocolViolation:
		m = "Protocol Violation"
	case UsageError:
		m = "Usage Error"
	}

	return fmt.Sprintf("%s, %s, %s", e.op, m, e.detail)
}

// IsKind checks that an error is of type OpError and that its kind matches the
// provided ErrKind.
func IsKind(err error, kind ErrKind) bool {
	opErr, ok := err.(OpError)
	return ok && opErr.kind == kind
}

// IsTransient ...
func IsTransient(err error) bool {
	return IsKind(err, Transient)
}

// IsActionFailed ...
func IsActionFailed(err error) bool {
	return IsKind(err, ActionFailed)
}

// IsProtocolViolation ...
func IsProtocolViolation(err error) bool {
	return IsKind(err, ProtocolViolation)
}

// IsUsageError ...
func IsUsageError(err error) bool {
	return IsKind(err, UsageError)
}
