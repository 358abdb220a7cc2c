package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint // instant event
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent coarser events; a scope is emitted when the
// tracer level is at least its value.
type Scope uint8

const (
	ScopeCommand Scope = iota + 1
	ScopePass
	ScopeItem
	ScopeDetail
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeCommand:
		return "command"
	case ScopePass:
		return "pass"
	case ScopeItem:
		return "item"
	case ScopeDetail:
		return "detail"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned by the tracer that stores the event
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for root spans
	Name     string // e.g. "classify", "vtable:Circle as dyn Shape"
	Detail   string
	Elapsed  time.Duration // set on span end
	Extra    map[string]string
}
