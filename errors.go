package rrdispatch

import (
	"errors"
	"fmt"
)

const Namespace = "rrdispatch"

// ErrorKind is the closed set of error kinds in spec.md §7. It is carried by
// TaskError rather than expressed as distinct Go error types, so the router
// and C1's outbound encoder can switch over it exhaustively (DESIGN NOTES /
// Polymorphism over task kinds, applied to errors too).
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindMalformedFraming
	ErrorKindParseError
	ErrorKindUnknownCommand
	ErrorKindInvalidArguments
	ErrorKindNoSuchTask
	ErrorKindWorkerSpawnFailed
	ErrorKindResourceExhausted
	ErrorKindWorkerFailed
	ErrorKindInterruptTimeout
	ErrorKindCancelled
	ErrorKindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindMalformedFraming:
		return "MalformedFraming"
	case ErrorKindParseError:
		return "ParseError"
	case ErrorKindUnknownCommand:
		return "UnknownCommand"
	case ErrorKindInvalidArguments:
		return "InvalidArguments"
	case ErrorKindNoSuchTask:
		return "NoSuchTask"
	case ErrorKindWorkerSpawnFailed:
		return "WorkerSpawnFailed"
	case ErrorKindResourceExhausted:
		return "ResourceExhausted"
	case ErrorKindWorkerFailed:
		return "WorkerFailed"
	case ErrorKindInterruptTimeout:
		return "InterruptTimeout"
	case ErrorKindCancelled:
		return "Cancelled"
	case ErrorKindFatal:
		return "Fatal"
	default:
		return "None"
	}
}

var (
	ErrUnknownCommand    = errors.New(Namespace + ": unknown command")
	ErrInvalidArguments  = errors.New(Namespace + ": invalid arguments")
	ErrNoSuchTask        = errors.New(Namespace + ": no such task")
	ErrResourceExhausted = errors.New(Namespace + ": resource exhausted")
	ErrInvalidConfig     = errors.New(Namespace + ": invalid configuration")
	ErrDispatcherClosed  = errors.New(Namespace + ": dispatcher is closed")
)

// TaskError correlates a dispatcher error with the task_id and kind that
// produced it (modeled on the teacher's taskTaggedError/TaskMetaError in
// error_tagging.go), so C1 can always produce a
// {request_seq, success:false, message} response without re-deriving
// context at the call site.
type TaskError struct {
	Kind     ErrorKind
	TaskID   string
	TaskKind Kind
	err      error
}

// NewTaskError wraps err with the error kind and task correlation metadata
// required to build an outbound failure response (§7).
func NewTaskError(kind ErrorKind, taskID string, taskKind Kind, err error) *TaskError {
	return &TaskError{Kind: kind, TaskID: taskID, TaskKind: taskKind, err: err}
}

func (e *TaskError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.err)
	}
	return e.Kind.String()
}

func (e *TaskError) Unwrap() error { return e.err }

// Message is the exact string §8's scenarios expect in a response's
// `message` field (e.g. "Cancelled", "WorkerFailed", "ResourceExhausted").
func (e *TaskError) Message() string { return e.Kind.String() }

// ExtractTaskError returns the *TaskError wrapped in err, if any.
func ExtractTaskError(err error) (*TaskError, bool) {
	var te *TaskError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
