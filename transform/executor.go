package transform

import (
	"sort"

	"github.com/gomlx/tfgraph/graph"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Executor is a compiled forward computation: it takes one concrete tensor
// per designated input operation, in the order given to BuildExecutor, and
// returns the output operation's materialized value.
//
// The returned tensor is a copy: it does not alias the engine's internal
// storage, so it stays valid across subsequent calls. An Executor is not
// safe for concurrent calls, since kernels write into shared buffers.
type Executor func(args ...*tensors.Tensor) (*tensors.Tensor, error)

// BuildExecutor compiles an executor for the graph rooted at output,
// feeding the given input operations. Storage for every operation reachable
// from output is allocated lazily on first execution and memoized in the
// Transformer's allocation table, so repeated executions (and other
// executors built from the same Transformer) reuse it.
func (tr *Transformer) BuildExecutor(output *graph.Node, inputs ...*graph.Node) (Executor, error) {
	if output == nil {
		return nil, errors.New("BuildExecutor: nil output operation")
	}
	g := output.Graph()
	seen := make(map[*graph.Node]bool, len(inputs))
	for _, input := range inputs {
		if input == nil || input.Graph() != g {
			return nil, errors.Errorf("BuildExecutor: input operations must belong to the output's graph %q", g.Name())
		}
		if !input.HasValue() {
			return nil, errors.Errorf("BuildExecutor: input operation %q (%s) has no value to feed", input.Name(), input.Type())
		}
		if seen[input] {
			return nil, errors.Errorf("BuildExecutor: input operation %q designated twice", input.Name())
		}
		seen[input] = true
	}

	plan := executionPlan(output)
	for _, node := range plan {
		if node.Type() == graph.NodeTypePlaceholder && !seen[node] {
			return nil, errors.Errorf("BuildExecutor: placeholder %q is reachable from output %q but not designated as an input",
				node.Name(), output.Name())
		}
	}
	klog.V(2).Infof("transform: built executor for %q over %d operations", output.Name(), len(plan))

	return func(args ...*tensors.Tensor) (*tensors.Tensor, error) {
		if len(args) != len(inputs) {
			return nil, errors.Errorf("executor for %q: got %d arguments, want %d", output.Name(), len(args), len(inputs))
		}
		for ii, arg := range args {
			if err := tr.feed(inputs[ii], arg); err != nil {
				return nil, err
			}
		}
		for _, node := range plan {
			if seen[node] {
				continue // Fed above.
			}
			if err := tr.executeNode(node); err != nil {
				return nil, errors.WithMessagef(err, "executing operation %q (%s)", node.Name(), node.Type())
			}
		}
		if !output.HasValue() {
			return nil, nil
		}
		return tr.allocations[output].tensor.Clone(), nil
	}, nil
}

// executionPlan returns the nodes reachable from output in dependency
// order. Node ids follow creation order and inputs are always created
// first, so ascending id order is a valid schedule.
func executionPlan(output *graph.Node) []*graph.Node {
	var plan []*graph.Node
	visited := make(map[*graph.Node]bool)
	var visit func(n *graph.Node)
	visit = func(n *graph.Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, input := range n.Inputs() {
			visit(input)
		}
		plan = append(plan, n)
	}
	visit(output)
	sort.Slice(plan, func(i, j int) bool { return plan[i].Id() < plan[j].Id() })
	return plan
}

// feed copies a caller-provided tensor into the input operation's storage.
func (tr *Transformer) feed(input *graph.Node, arg *tensors.Tensor) error {
	m := tr.materialize(input)
	if arg == nil || !arg.Shape().EqualDimensions(m.desc.Shape) {
		return errors.Wrapf(ErrShapeMismatch, "feeding operation %q: got %v, want %s",
			input.Name(), argShape(arg), m.desc.Shape)
	}
	if err := tr.backend.Copy(arg, m.tensor); err != nil {
		return errors.WithMessagef(err, "feeding operation %q", input.Name())
	}
	m.state = initialized
	return nil
}

func argShape(arg *tensors.Tensor) any {
	if arg == nil {
		return "<nil>"
	}
	return arg.Shape()
}

// executeNode runs the forward computation of one node into its
// pre-allocated storage (allocated -> initialized; re-execution overwrites
// in place).
func (tr *Transformer) executeNode(node *graph.Node) error {
	if node.Type() == graph.NodeTypeNoOp {
		// Control aggregation only: its dependencies are scheduled by the
		// execution plan, there is nothing to materialize.
		return nil
	}

	m := tr.materialize(node)
	in := func(idx int) *tensors.Tensor {
		return tr.allocations[node.Inputs()[idx]].tensor
	}

	var err error
	switch node.Type() {
	case graph.NodeTypePlaceholder:
		if m.state != initialized {
			return errors.Errorf("placeholder %q was never fed", node.Name())
		}

	case graph.NodeTypeVariable:
		// Persistent storage: starts zeroed, written by Assign operations.

	case graph.NodeTypeConstant:
		if m.state != initialized {
			err = tr.backend.Copy(node.ConstValue(), m.tensor)
		}

	case graph.NodeTypeFill:
		err = tr.backend.Fill(m.tensor, node.FillValue())

	case graph.NodeTypeUniform:
		if m.state != initialized {
			var fill *tensors.Tensor
			fill, err = node.AllocationFill(tr, m.desc)
			if err == nil {
				err = tr.backend.Copy(fill, m.tensor)
			}
		}

	case graph.NodeTypeIdentity:
		err = tr.backend.Copy(in(0), m.tensor)

	case graph.NodeTypeAssign:
		target := tr.materialize(node.Inputs()[0])
		if err = tr.backend.Copy(in(1), target.tensor); err == nil {
			target.state = initialized
			err = tr.backend.Copy(in(1), m.tensor)
		}

	case graph.NodeTypeNeg:
		err = tr.backend.Neg(in(0), m.tensor)
	case graph.NodeTypeAbs:
		err = tr.backend.Abs(in(0), m.tensor)
	case graph.NodeTypeSign:
		err = tr.backend.Sign(in(0), m.tensor)
	case graph.NodeTypeExp:
		err = tr.backend.Exp(in(0), m.tensor)
	case graph.NodeTypeLog:
		err = tr.backend.Log(in(0), m.tensor)
	case graph.NodeTypeSqrt:
		err = tr.backend.Sqrt(in(0), m.tensor)
	case graph.NodeTypeSquare:
		err = tr.backend.Square(in(0), m.tensor)
	case graph.NodeTypeReciprocal:
		err = tr.backend.Reciprocal(in(0), m.tensor)
	case graph.NodeTypeSin:
		err = tr.backend.Sin(in(0), m.tensor)
	case graph.NodeTypeCos:
		err = tr.backend.Cos(in(0), m.tensor)
	case graph.NodeTypeTanh:
		err = tr.backend.Tanh(in(0), m.tensor)

	case graph.NodeTypeAdd:
		err = tr.backend.Add(in(0), in(1), m.tensor)
	case graph.NodeTypeSub:
		err = tr.backend.Sub(in(0), in(1), m.tensor)
	case graph.NodeTypeMul:
		err = tr.backend.Mul(in(0), in(1), m.tensor)
	case graph.NodeTypeDiv:
		err = tr.backend.Div(in(0), in(1), m.tensor)
	case graph.NodeTypeMaximum:
		err = tr.backend.Maximum(in(0), in(1), m.tensor)
	case graph.NodeTypeMinimum:
		err = tr.backend.Minimum(in(0), in(1), m.tensor)

	case graph.NodeTypeEqual:
		err = tr.backend.Equal(in(0), in(1), m.tensor)
	case graph.NodeTypeNotEqual:
		err = tr.backend.NotEqual(in(0), in(1), m.tensor)
	case graph.NodeTypeGreater:
		err = tr.backend.Greater(in(0), in(1), m.tensor)
	case graph.NodeTypeGreaterOrEqual:
		err = tr.backend.GreaterOrEqual(in(0), in(1), m.tensor)
	case graph.NodeTypeLess:
		err = tr.backend.Less(in(0), in(1), m.tensor)
	case graph.NodeTypeLessOrEqual:
		err = tr.backend.LessOrEqual(in(0), in(1), m.tensor)

	case graph.NodeTypeReduceSum:
		err = tr.backend.Sum(in(0), node.ReduceAxis(), m.tensor)
	case graph.NodeTypeReduceMean:
		err = tr.backend.Mean(in(0), node.ReduceAxis(), m.tensor)
	case graph.NodeTypeReduceMax:
		err = tr.backend.Max(in(0), node.ReduceAxis(), m.tensor)
	case graph.NodeTypeReduceMin:
		err = tr.backend.Min(in(0), node.ReduceAxis(), m.tensor)

	case graph.NodeTypeArgMax:
		err = tr.backend.ArgMax(in(0), m.tensor)
	case graph.NodeTypeArgMin:
		err = tr.backend.ArgMin(in(0), m.tensor)

	case graph.NodeTypeBroadcast:
		axis, length := node.BroadcastAxisAndLength()
		err = tr.backend.Broadcast(in(0), axis, length, m.tensor)

	case graph.NodeTypeDot:
		transposeLhs, transposeRhs := node.DotTransposes()
		err = tr.backend.Dot(in(0), in(1), transposeLhs, transposeRhs, m.tensor)

	default:
		return errors.Errorf("no kernel for operation type %s", node.Type())
	}
	if err != nil {
		return err
	}
	m.state = initialized
	return nil
}
