// Package transform implements the backend-agnostic execution engine over
// an operation graph: it lowers each operation's symbolic axes to allocated
// storage on a concrete backend, compiles executors that run the forward
// computation, and builds symbolic (reverse-mode) and numeric
// (finite-difference) derivative executors used to cross-check gradients.
//
// A Transformer owns an allocation table keyed by operation identity:
// storage for an operation is allocated at most once per Transformer, and
// every executor built from the same Transformer reuses it. Executors
// overwrite their buffers in place on re-execution and are therefore not
// safe for concurrent calls.
package transform

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tfgraph/graph"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrShapeMismatch is wrapped by errors reported when a concrete tensor
// doesn't match the shape an operation's axes inferred. These are fatal:
// they indicate a defect in axes inference, never a recoverable condition.
var ErrShapeMismatch = errors.New("shape mismatch")

// Backend provides the numeric primitives the engine composes: an
// allocator, a seeded random generator, and one kernel per operation type.
//
// Every kernel receives already-allocated input tensor views and a
// pre-allocated output view of the correct shape, and writes its results
// into the output in place -- no kernel reallocates, so buffers are reused
// across repeated executions. The kernel catalog matches the reference
// numpy transformer of the original system.
type Backend interface {
	Name() string

	// Empty allocates uninitialized storage for the given description.
	Empty(desc tensors.Description) *tensors.Tensor

	// Rng returns a backend-specific random generator handle for the given
	// seed. The handle is opaque to the engine: it is stored by allocation
	// operations and passed back to UniformTensor.
	Rng(seed int64) any

	// UniformTensor returns a new tensor for desc filled with uniform
	// random values in [low, high) drawn from rng.
	UniformTensor(rng any, desc tensors.Description, low, high float64) (*tensors.Tensor, error)

	// Side effects.
	Fill(out *tensors.Tensor, value float64) error
	Copy(x, out *tensors.Tensor) error
	SetItem(out *tensors.Tensor, indices []int, value float64) error

	// Element-wise unary kernels.
	Neg(x, out *tensors.Tensor) error
	Abs(x, out *tensors.Tensor) error
	Sign(x, out *tensors.Tensor) error
	Exp(x, out *tensors.Tensor) error
	Log(x, out *tensors.Tensor) error
	Sqrt(x, out *tensors.Tensor) error
	Square(x, out *tensors.Tensor) error
	Reciprocal(x, out *tensors.Tensor) error
	Sin(x, out *tensors.Tensor) error
	Cos(x, out *tensors.Tensor) error
	Tanh(x, out *tensors.Tensor) error

	// Element-wise binary kernels. A scalar operand broadcasts.
	Add(x, y, out *tensors.Tensor) error
	Sub(x, y, out *tensors.Tensor) error
	Mul(x, y, out *tensors.Tensor) error
	Div(x, y, out *tensors.Tensor) error
	Maximum(x, y, out *tensors.Tensor) error
	Minimum(x, y, out *tensors.Tensor) error

	// Comparisons, writing 0/1 masks.
	Equal(x, y, out *tensors.Tensor) error
	NotEqual(x, y, out *tensors.Tensor) error
	Greater(x, y, out *tensors.Tensor) error
	GreaterOrEqual(x, y, out *tensors.Tensor) error
	Less(x, y, out *tensors.Tensor) error
	LessOrEqual(x, y, out *tensors.Tensor) error

	// Reductions along one axis, or over every axis when axis is
	// graph.ReduceAllAxes. The reduced axis is removed from out's shape.
	Sum(x *tensors.Tensor, axis int, out *tensors.Tensor) error
	Mean(x *tensors.Tensor, axis int, out *tensors.Tensor) error
	Max(x *tensors.Tensor, axis int, out *tensors.Tensor) error
	Min(x *tensors.Tensor, axis int, out *tensors.Tensor) error

	// Index reductions along the leading axis: out holds the index of the
	// extreme value of each column, with x's leading axis removed.
	ArgMax(x, out *tensors.Tensor) error
	ArgMin(x, out *tensors.Tensor) error

	// Broadcast inserts an axis of the given length at the given position
	// of x's shape, repeating x along it.
	Broadcast(x *tensors.Tensor, axis, length int, out *tensors.Tensor) error

	// Dot writes the matrix product of two rank-2 tensors, optionally
	// transposing either operand first.
	Dot(x, y *tensors.Tensor, transposeLhs, transposeRhs bool, out *tensors.Tensor) error
}

// allocState tracks the materialization state machine of one operation:
// absence from the allocation table is the implicit "unallocated" state.
type allocState int

const (
	// allocated means storage exists but holds no meaningful contents yet.
	allocated allocState = iota

	// initialized means a forward kernel or the operation's allocation
	// closure has filled the storage at least once. Re-execution overwrites
	// in place and stays initialized.
	initialized
)

// materialized is one entry of the Transformer's allocation table.
type materialized struct {
	node   *graph.Node
	desc   tensors.Description
	tensor *tensors.Tensor
	state  allocState
}

// Transformer turns abstract, axis-typed operations into allocated storage
// and executable numeric computations on one Backend. Operations are
// designated by identity (*graph.Node), not by name: callers must retain
// the references obtained from the importer or the graph constructors.
//
// A Transformer is single-threaded: its allocation table is mutated by the
// first execution reaching each operation.
type Transformer struct {
	backend     Backend
	allocations map[*graph.Node]*materialized
}

// Compile-time check: the Transformer is the Materializer allocation
// operations see.
var _ graph.Materializer = (*Transformer)(nil)

// New creates a Transformer executing on the given backend.
func New(backend Backend) *Transformer {
	return &Transformer{
		backend:     backend,
		allocations: make(map[*graph.Node]*materialized),
	}
}

// Backend returns the backend this transformer executes on.
func (tr *Transformer) Backend() Backend {
	return tr.backend
}

// Rng returns a seeded random generator handle of the underlying backend,
// to be captured by allocation operations (see graph.Uniform). Execution
// is reproducible given a fixed seed and a fixed sequence of allocations.
func (tr *Transformer) Rng(seed int64) any {
	return tr.backend.Rng(seed)
}

// UniformTensor implements graph.Materializer by delegating to the
// backend's random primitive.
func (tr *Transformer) UniformTensor(rng any, desc tensors.Description, low, high float64) (*tensors.Tensor, error) {
	return tr.backend.UniformTensor(rng, desc, low, high)
}

// materialize returns the allocation table entry for the node, lowering
// its axes to a tensor description and allocating backing storage on
// first request (unallocated -> allocated).
func (tr *Transformer) materialize(node *graph.Node) *materialized {
	if m, found := tr.allocations[node]; found {
		return m
	}
	desc := tensors.NewDescription(node.Shape())
	m := &materialized{
		node:   node,
		desc:   desc,
		tensor: tr.backend.Empty(desc),
		state:  allocated,
	}
	tr.allocations[node] = m
	if klog.V(1).Enabled() {
		klog.Infof("transform: allocated %s for %q (%s) on %s",
			humanize.IBytes(uint64(desc.Memory())), node.Name(), desc.Shape, tr.backend.Name())
	}
	return m
}

// NumAllocations returns the number of operations with allocated storage.
func (tr *Transformer) NumAllocations() int {
	return len(tr.allocations)
}
