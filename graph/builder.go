package graph

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/checkpoint"
	"github.com/BaSui01/stategraph/types"
)

// Builder assembles a graph definition: nodes, edges, the entry point,
// and per-key reducers. It replaces process-global registration; the
// definition lives on the builder and becomes immutable at Compile.
type Builder struct {
	name     string
	registry *Registry
	edges    *edgeTable
	reducers map[string]Reducer
	entry    string
	logger   *zap.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		registry: NewRegistry(),
		edges:    newEdgeTable(),
		reducers: make(map[string]Reducer),
		logger:   zap.NewNop(),
	}
}

// WithLogger sets the logger inherited by compiled graphs.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// AddNode registers a named node function. Duplicate names fail with
// DUPLICATE_NODE immediately.
func (b *Builder) AddNode(name string, fn NodeFunc) error {
	return b.registry.Register(name, fn)
}

// AddEdge registers a static transition. Both endpoints must already be
// added (End is always a legal target); violations fail immediately.
func (b *Builder) AddEdge(from, to string) error {
	if !b.registry.Has(from) {
		return types.NewError(types.ErrUnknownNode, fmt.Sprintf("edge source not registered: %s", from))
	}
	if to != End && !b.registry.Has(to) {
		return types.NewError(types.ErrUnknownNode, fmt.Sprintf("edge target not registered: %s", to))
	}
	return b.edges.addStatic(from, to)
}

// AddConditionalEdges registers a routing function with its closed set
// of legal destinations. Every destination must already be added (End
// is always legal).
func (b *Builder) AddConditionalEdges(from string, router RouterFunc, destinations ...string) error {
	if !b.registry.Has(from) {
		return types.NewError(types.ErrUnknownNode, fmt.Sprintf("edge source not registered: %s", from))
	}
	for _, d := range destinations {
		if d != End && !b.registry.Has(d) {
			return types.NewError(types.ErrUnknownNode, fmt.Sprintf("conditional destination not registered: %s", d))
		}
	}
	return b.edges.addConditional(from, router, destinations)
}

// SetEntry declares the entry node.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// WithReducer declares a per-key merge reducer. Keys without a reducer
// merge last-write-wins.
func (b *Builder) WithReducer(key string, r Reducer) *Builder {
	if r != nil {
		b.reducers[key] = r
	}
	return b
}

// Compile validates the definition and returns an immutable executable
// graph. Validation failures are INVALID_GRAPH errors naming the
// offending node.
func (b *Builder) Compile(opts ...Option) (*CompiledGraph, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	g := &CompiledGraph{
		name:     b.name,
		entry:    b.entry,
		registry: b.registry,
		edges:    b.edges,
		reducers: b.reducers,
		opts:     options,
		store:    options.store,
		logger:   b.logger.With(zap.String("component", "graph_executor"), zap.String("graph", b.name)),
		tracer:   otel.Tracer("stategraph/graph"),
		runs:     make(map[string]*Run),
	}

	g.logger.Info("graph compiled",
		zap.String("entry", b.entry),
		zap.Int("nodes", len(b.registry.Names())),
	)
	return g, nil
}

func (b *Builder) validate() error {
	if len(b.registry.Names()) == 0 {
		return types.NewError(types.ErrInvalidGraph, "graph has no nodes")
	}
	if b.entry == "" {
		return types.NewError(types.ErrInvalidGraph, "entry node not set")
	}
	if !b.registry.Has(b.entry) {
		return types.NewError(types.ErrUnknownNode, fmt.Sprintf("entry node not registered: %s", b.entry))
	}

	// Edge endpoints are checked at add time; re-check here so a table
	// built through BuildDefinition cannot slip an unknown name in.
	for _, from := range b.edges.sources() {
		if !b.registry.Has(from) {
			return types.NewError(types.ErrUnknownNode, fmt.Sprintf("edge source not registered: %s", from))
		}
	}
	for _, to := range b.edges.targets() {
		if to != End && !b.registry.Has(to) {
			return types.NewError(types.ErrUnknownNode, fmt.Sprintf("edge target not registered: %s", to))
		}
	}
	return nil
}

// Option configures a compiled graph.
type Option func(*graphOptions)

type graphOptions struct {
	maxSteps    int
	stepTimeout time.Duration
	store       checkpoint.Store
}

func defaultOptions() graphOptions {
	return graphOptions{maxSteps: DefaultMaxSteps}
}

// WithMaxSteps overrides the step ceiling that guards against infinite
// cycles. Values below 1 keep the default.
func WithMaxSteps(n int) Option {
	return func(o *graphOptions) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithStepTimeout bounds every node invocation. Zero or negative
// disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(o *graphOptions) {
		if d > 0 {
			o.stepTimeout = d
		}
	}
}

// WithCheckpointStore enables durable checkpointing: after every
// completed step the run state is persisted before the step is
// reported done, and runs become resumable by ID.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(o *graphOptions) {
		o.store = store
	}
}
