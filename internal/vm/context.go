package vm

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"layoutcore/internal/layout"
	"layoutcore/internal/trace"
	"layoutcore/internal/types"
)

type vtableKey struct {
	Ty types.TypeID
	Ex types.ExistentialID
}

// EvalContext owns the state of one evaluation: its memory, layout cache and
// dispatch table cache. Contexts are independent of each other and not safe
// for concurrent use.
type EvalContext struct {
	ID       uuid.UUID
	Types    *types.Interner
	Layout   *layout.LayoutEngine
	Memory   *Memory
	Resolver Resolver
	Tracer   trace.Tracer

	log     *zap.Logger
	vtables map[vtableKey]Pointer
}

// Option configures an EvalContext.
type Option func(*EvalContext)

// WithResolver replaces the default ImplResolver.
func WithResolver(r Resolver) Option {
	return func(cx *EvalContext) {
		cx.Resolver = r
	}
}

// WithTracer attaches a tracer for table construction spans.
func WithTracer(t trace.Tracer) Option {
	return func(cx *EvalContext) {
		if t != nil {
			cx.Tracer = t
		}
	}
}

// WithLayout shares an existing layout engine. Its interner must be in.
func WithLayout(le *layout.LayoutEngine) Option {
	return func(cx *EvalContext) {
		if le != nil {
			cx.Layout = le
		}
	}
}

// NewEvalContext creates a context with empty memory for target.
func NewEvalContext(target layout.Target, in *types.Interner, opts ...Option) *EvalContext {
	cx := &EvalContext{
		ID:      uuid.New(),
		Types:   in,
		Memory:  NewMemory(target),
		Tracer:  trace.Nop,
		vtables: make(map[vtableKey]Pointer, 16),
	}
	for _, opt := range opts {
		opt(cx)
	}
	if cx.Layout == nil {
		cx.Layout = layout.New(target, in)
	}
	if cx.Resolver == nil {
		cx.Resolver = NewImplResolver(in)
	}
	cx.log = Logger().With(zap.Stringer("ctx", cx.ID))
	return cx
}

// Target returns the target the context evaluates for.
func (cx *EvalContext) Target() layout.Target {
	return cx.Memory.target
}

// VtableCount returns the number of cached dispatch tables.
func (cx *EvalContext) VtableCount() int {
	return len(cx.vtables)
}
