package rrdispatch

// Kind enumerates the task vocabulary the dispatcher understands. It is a
// closed set: the router switches on Kind exhaustively rather than using
// dynamic dispatch (see DESIGN NOTES / Polymorphism over task kinds).
type Kind string

const (
	// Step-like: non-interruptible, always bound to the stable worker.
	KindStepIn          Kind = "step-in"
	KindStepOver        Kind = "step-over"
	KindStepOut         Kind = "step-out"
	KindNext            Kind = "next"
	KindContinue        Kind = "continue"
	KindReverseStepIn   Kind = "reverse-step-in"
	KindReverseStepOver Kind = "reverse-step-over"
	KindReverseStepOut  Kind = "reverse-step-out"
	KindReverseNext     Kind = "reverse-next"
	KindReverseContinue Kind = "reverse-continue"

	// Jump-like: interruptible, may replace an in-flight jump.
	KindGotoTick     Kind = "goto-tick"
	KindGotoLocation Kind = "goto-location"
	KindRunToEntry   Kind = "run-to-entry"

	// Info: interruptible, may be served by any worker whose position satisfies it.
	KindLocals          Kind = "locals"
	KindStackTrace      Kind = "stack-trace"
	KindEvaluate        Kind = "evaluate"
	KindReadSource      Kind = "read-source"
	KindCalltraceWindow Kind = "calltrace-window"
	KindEventsWindow    Kind = "events-window"
	KindFlow            Kind = "flow"
	// KindCurrentLocation supplements the distilled spec's Info kinds: it is
	// exercised by spec.md §8 scenario 5's follow-up check but was not
	// itself listed among §3's Info kinds. Routed identically to Locals.
	KindCurrentLocation Kind = "current-location"

	// Tracepoint: non-tracking, served by a free worker only.
	KindSetTracepoint   Kind = "set-tracepoint"
	KindClearTracepoint Kind = "clear-tracepoint"
	KindRunTracepoints  Kind = "run-tracepoints"

	// Control: handled by the dispatcher directly, never forwarded to a worker.
	KindConfigure Kind = "configure"
	KindFullReset Kind = "full-reset"
	KindCancel    Kind = "cancel"
	KindShutdown  Kind = "shutdown"
)

// Category classifies a Kind into one of the five families §3 partitions
// tasks into. Control tasks are handled inline by the dispatcher and never
// reach the router's worker-selection machinery.
type Category int

const (
	CategoryStepLike Category = iota
	CategoryJumpLike
	CategoryInfo
	CategoryTracepoint
	CategoryControl
)

func (c Category) String() string {
	switch c {
	case CategoryStepLike:
		return "step-like"
	case CategoryJumpLike:
		return "jump-like"
	case CategoryInfo:
		return "info"
	case CategoryTracepoint:
		return "tracepoint"
	case CategoryControl:
		return "control"
	default:
		return "unknown"
	}
}

var categoryByKind = map[Kind]Category{
	KindStepIn:          CategoryStepLike,
	KindStepOver:        CategoryStepLike,
	KindStepOut:         CategoryStepLike,
	KindNext:            CategoryStepLike,
	KindContinue:        CategoryStepLike,
	KindReverseStepIn:   CategoryStepLike,
	KindReverseStepOver: CategoryStepLike,
	KindReverseStepOut:  CategoryStepLike,
	KindReverseNext:     CategoryStepLike,
	KindReverseContinue: CategoryStepLike,

	KindGotoTick:     CategoryJumpLike,
	KindGotoLocation: CategoryJumpLike,
	KindRunToEntry:   CategoryJumpLike,

	KindLocals:          CategoryInfo,
	KindStackTrace:      CategoryInfo,
	KindEvaluate:        CategoryInfo,
	KindReadSource:      CategoryInfo,
	KindCalltraceWindow: CategoryInfo,
	KindEventsWindow:    CategoryInfo,
	KindFlow:            CategoryInfo,
	KindCurrentLocation: CategoryInfo,

	KindSetTracepoint:   CategoryTracepoint,
	KindClearTracepoint: CategoryTracepoint,
	KindRunTracepoints:  CategoryTracepoint,

	KindConfigure: CategoryControl,
	KindFullReset: CategoryControl,
	KindCancel:    CategoryControl,
	KindShutdown:  CategoryControl,
}

// CategoryOf returns the family a Kind belongs to, and whether the Kind was
// recognized at all. An unrecognized Kind should be surfaced by the caller
// as an UnknownCommand error (see errors.go), never routed.
func CategoryOf(k Kind) (Category, bool) {
	c, ok := categoryByKind[k]
	return c, ok
}

// Interruptible reports whether a task of this Kind may be cancelled and
// replaced while in flight. Step-like and tracepoint tasks are not;
// jump-like and info tasks are.
func (k Kind) Interruptible() bool {
	switch categoryByKind[k] {
	case CategoryJumpLike, CategoryInfo:
		return true
	default:
		return false
	}
}

// Direction of a step or jump task relative to the trace's tick axis.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionReverse
	DirectionAbsolute
)

// Location addresses a point in the trace: some combination of file/line,
// a byte offset, or a tick count. Which fields are meaningful depends on
// Kind; the router does not validate location content (§4.2: "checked
// lazily by the worker").
type Location struct {
	File   string
	Line   int
	Offset int64
	Tick   int64
}

// Task is a unit of client-requested work, as defined in spec.md §3.
type Task struct {
	ID            string
	Seq           int64
	Kind          Kind
	Payload       []byte
	Target        *Location
	Direction     Direction
	Interruptible bool

	// internal marks a reposition task scheduled by the pool itself (§4.3:
	// "treated as internal tasks, not reported to the client").
	internal bool
}

// NewTask constructs a Task with Interruptible derived from Kind, as required
// by §3 ("an interruptible flag derived from kind").
func NewTask(id string, seq int64, kind Kind, payload []byte, target *Location, dir Direction) *Task {
	return &Task{
		ID:            id,
		Seq:           seq,
		Kind:          kind,
		Payload:       payload,
		Target:        target,
		Direction:     dir,
		Interruptible: kind.Interruptible(),
	}
}

// newInternalTask builds a reposition task used by the pool to pre-position
// reserve workers (§4.3). It is never handed to C1's outbound encoder.
func newInternalTask(id string, kind Kind, target *Location) *Task {
	t := NewTask(id, 0, kind, nil, target, DirectionAbsolute)
	t.internal = true
	return t
}

// Internal reports whether this task was scheduled by the pool itself (a
// reserve repositioning) rather than submitted by the client.
func (t *Task) Internal() bool { return t.internal }

// Category is a convenience accessor over the package-level classification.
func (t *Task) Category() (Category, bool) {
	return CategoryOf(t.Kind)
}
