/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package importer

import (
	"sort"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/graph"
	"github.com/gomlx/tfgraph/graphdef"
	"github.com/gomlx/tfgraph/types"
	"github.com/gomlx/tfgraph/types/axes"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/pkg/errors"
)

// ErrUnsupportedOp is wrapped by Dispatch when an external node's type tag
// has no registered handler. The Importer recovers it as a soft failure:
// the node (and its dependents) become missing instead of aborting the
// import.
var ErrUnsupportedOp = errors.New("unsupported operation type")

// handlerFunc builds the internal operations for one external node, given
// its already-resolved input operations: data inputs first, in declared
// order, followed by any control-only dependencies. Handlers that take a
// fixed number of data operands index the leading entries and ignore
// trailing control dependencies; the aggregate no-op handler consumes all
// of them. Handlers panic (through the exceptions package) on malformed
// attributes, which the Importer surfaces as a fatal error.
type handlerFunc func(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output

// Bridge maps external operation type tags to constructors of internal
// operations. The handler registry is enumerated at construction, so the
// supported set is an explicit collection rather than a reflection side
// effect.
//
// The bridge also tracks which assignment nodes feed the designated
// aggregate initializer (populated by the Importer's discovery pass):
// those build real assignment operations, while assignments outside the
// set only expose their value, without replaying the copy.
type Bridge struct {
	graph      *graph.Graph
	rng        any
	assignDeps types.Set[string]
	handlers   map[string]handlerFunc
}

// NewBridge creates a bridge building into g. The rng handle parameterizes
// random-initializer operations; it comes from the executing backend and
// is opaque here.
func NewBridge(g *graph.Graph, rng any) *Bridge {
	b := &Bridge{
		graph:      g,
		rng:        rng,
		assignDeps: types.MakeSet[string](),
	}
	b.handlers = map[string]handlerFunc{
		"Placeholder": b.placeholder,
		"Const":       b.constant,
		"Variable":    b.variable,
		"VariableV2":  b.variable,
		"Assign":      b.assign,
		"Identity":    b.identity,
		"NoOp":        b.noOp,

		"Add":     b.binary(graph.Add),
		"Sub":     b.binary(graph.Sub),
		"Mul":     b.binary(graph.Mul),
		"Div":     b.binary(graph.Div),
		"Maximum": b.binary(graph.Maximum),
		"Minimum": b.binary(graph.Minimum),
		"MatMul":  b.matMul,

		"Neg":     b.unary(graph.Neg),
		"Abs":     b.unary(graph.Abs),
		"Exp":     b.unary(graph.Exp),
		"Log":     b.unary(graph.Log),
		"Sqrt":    b.unary(graph.Sqrt),
		"Square":  b.unary(graph.Square),
		"Tanh":    b.unary(graph.Tanh),
		"Sigmoid": b.unary(graph.Sigmoid),
		"Relu":    b.relu,

		"Sum":  b.reduce(graph.ReduceSum),
		"Mean": b.reduce(graph.ReduceMean),

		"ArgMax": b.argReduce(graph.ArgMax),
		"ArgMin": b.argReduce(graph.ArgMin),

		"Equal":        b.binary(graph.Equal),
		"NotEqual":     b.binary(graph.NotEqual),
		"Greater":      b.binary(graph.Greater),
		"GreaterEqual": b.binary(graph.GreaterOrEqual),
		"Less":         b.binary(graph.Less),
		"LessEqual":    b.binary(graph.LessOrEqual),

		"RandomUniform": b.randomUniform,
	}
	return b
}

// MarkInitAssign records an external name as feeding the aggregate
// initializer. Called by the Importer's discovery pass before any node is
// dispatched.
func (b *Bridge) MarkInitAssign(name string) {
	b.assignDeps.Insert(name)
}

// SupportedOps returns the sorted type tags the bridge can dispatch.
func (b *Bridge) SupportedOps() []string {
	ops := make([]string, 0, len(b.handlers))
	for op := range b.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Dispatch builds the internal operation(s) for one external node. It
// returns an error wrapping ErrUnsupportedOp for unknown type tags; any
// other failure panics through the exceptions package and is considered a
// defect in the node's attributes or inputs.
func (b *Bridge) Dispatch(node *graphdef.NodeDef, inputs []*graph.Node) (graph.Output, error) {
	handler, found := b.handlers[node.Op]
	if !found {
		return graph.Missing(), errors.Wrapf(ErrUnsupportedOp, "%q (node %q)", node.Op, node.Name)
	}
	return handler(node, inputs), nil
}

// Attribute accessors: the bag is opaque beyond what the handlers consume,
// and a handler missing a required attribute is a malformed node.

func attrDType(node *graphdef.NodeDef, key string) shapes.DType {
	attr := node.GetAttr(key)
	if attr == nil {
		exceptions.Panicf("node %q (%s) is missing required attribute %q", node.Name, node.Op, key)
	}
	return attr.Type
}

func attrAxes(node *graphdef.NodeDef, key string) axes.Axes {
	attr := node.GetAttr(key)
	if attr == nil {
		exceptions.Panicf("node %q (%s) is missing required attribute %q", node.Name, node.Op, key)
	}
	return axes.FromDimensions(attr.Shape...)
}

func attrBool(node *graphdef.NodeDef, key string) bool {
	if attr := node.GetAttr(key); attr != nil {
		return attr.B
	}
	return false
}

func attrFloat(node *graphdef.NodeDef, key string, defaultValue float64) float64 {
	if attr := node.GetAttr(key); attr != nil {
		return attr.F
	}
	return defaultValue
}

func (b *Bridge) placeholder(node *graphdef.NodeDef, _ []*graph.Node) graph.Output {
	return graph.Single(graph.Placeholder(b.graph, node.Name, attrAxes(node, "shape"), attrDType(node, "dtype")))
}

func (b *Bridge) constant(node *graphdef.NodeDef, _ []*graph.Node) graph.Output {
	attr := node.GetAttr("value")
	if attr == nil || attr.Tensor == nil {
		exceptions.Panicf("node %q (Const) is missing its tensor literal attribute %q", node.Name, "value")
	}
	return graph.Single(graph.Constant(b.graph, tensorFromLiteral(node.Name, attr.Tensor)))
}

// tensorFromLiteral converts an interchange tensor literal to a concrete
// tensor. A literal with a single element broadcasts to the declared shape.
func tensorFromLiteral(name string, literal *graphdef.TensorValue) *tensors.Tensor {
	shape := shapes.Make(literal.DType, literal.Shape...)
	var flat []float64
	switch {
	case literal.Floats != nil:
		flat = literal.Floats
	case literal.Ints != nil:
		flat = make([]float64, len(literal.Ints))
		for ii, v := range literal.Ints {
			flat[ii] = float64(v)
		}
	case literal.Halves != nil:
		flat = make([]float64, len(literal.Halves))
		for ii, bits := range literal.Halves {
			flat[ii] = float64(shapes.Float16ToFloat32(bits))
		}
	default:
		exceptions.Panicf("node %q (Const): tensor literal carries no values", name)
	}

	if len(flat) == 1 && shape.Size() > 1 {
		t := tensors.New(shape)
		t.Fill(flat[0])
		return t
	}
	if len(flat) != shape.Size() {
		exceptions.Panicf("node %q (Const): literal has %d values for shape %s", name, len(flat), shape)
	}
	return tensors.FromFlat(shape, flat)
}

func (b *Bridge) variable(node *graphdef.NodeDef, _ []*graph.Node) graph.Output {
	return graph.Single(graph.Variable(b.graph, node.Name, attrAxes(node, "shape"), attrDType(node, "dtype")))
}

func (b *Bridge) assign(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
	if len(inputs) < 2 {
		exceptions.Panicf("node %q (Assign) needs a variable and a value, got %d inputs", node.Name, len(inputs))
	}
	if !b.assignDeps.Has(node.Name) {
		// Not part of the aggregate initializer: expose the assigned
		// value without replaying the copy.
		return graph.Single(graph.Identity(inputs[1]))
	}
	return graph.Single(graph.Assign(inputs[0], inputs[1]))
}

func (b *Bridge) identity(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
	if len(inputs) < 1 {
		exceptions.Panicf("node %q (Identity) has no input", node.Name)
	}
	return graph.Single(graph.Identity(inputs[0]))
}

func (b *Bridge) noOp(_ *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
	return graph.Single(graph.NoOp(b.graph, inputs...))
}

func (b *Bridge) unary(op func(*graph.Node) *graph.Node) handlerFunc {
	return func(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
		if len(inputs) < 1 {
			exceptions.Panicf("node %q (%s) has no input", node.Name, node.Op)
		}
		return graph.Single(op(inputs[0]))
	}
}

func (b *Bridge) binary(op func(lhs, rhs *graph.Node) *graph.Node) handlerFunc {
	return func(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
		if len(inputs) < 2 {
			exceptions.Panicf("node %q (%s) needs two operands, got %d inputs", node.Name, node.Op, len(inputs))
		}
		return graph.Single(op(inputs[0], inputs[1]))
	}
}

func (b *Bridge) matMul(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
	if len(inputs) < 2 {
		exceptions.Panicf("node %q (MatMul) needs two operands, got %d inputs", node.Name, len(inputs))
	}
	return graph.Single(graph.Dot(inputs[0], inputs[1],
		attrBool(node, "transpose_a"), attrBool(node, "transpose_b")))
}

func (b *Bridge) relu(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
	if len(inputs) < 1 {
		exceptions.Panicf("node %q (Relu) has no input", node.Name)
	}
	x := inputs[0]
	return graph.Single(graph.Maximum(x, graph.Scalar(b.graph, x.DType(), 0)))
}

// reduce builds a reduction handler. The external node carries the
// reduction axes as a second, constant-valued input: a single index
// reduces that axis, indices covering every axis reduce to a scalar.
func (b *Bridge) reduce(op func(x *graph.Node, axis int) *graph.Node) handlerFunc {
	return func(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
		if len(inputs) < 2 {
			exceptions.Panicf("node %q (%s) needs an operand and reduction indices, got %d inputs",
				node.Name, node.Op, len(inputs))
		}
		x, indices := inputs[0], inputs[1]
		if indices.Type() != graph.NodeTypeConstant {
			exceptions.Panicf("node %q (%s): reduction indices must be a constant, got %s",
				node.Name, node.Op, indices.Type())
		}
		value := indices.ConstValue()
		if value.Size() == x.Rank() {
			return graph.Single(op(x, graph.ReduceAllAxes))
		}
		if value.Size() != 1 {
			exceptions.Panicf("node %q (%s): only a single reduction axis or a full reduction is supported, got %d indices",
				node.Name, node.Op, value.Size())
		}
		axis := int(value.Flat()[0])
		if axis < 0 {
			axis += x.Rank()
		}
		return graph.Single(op(x, axis))
	}
}

// argReduce builds an index-reduction handler. The external node carries
// the dimension as a second, constant-valued input; only the leading axis
// is supported, matching the ArgMax/ArgMin kernel contract.
func (b *Bridge) argReduce(op func(x *graph.Node) *graph.Node) handlerFunc {
	return func(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
		if len(inputs) < 1 {
			exceptions.Panicf("node %q (%s) has no input", node.Name, node.Op)
		}
		if len(inputs) >= 2 {
			dim := inputs[1]
			if dim.Type() != graph.NodeTypeConstant {
				exceptions.Panicf("node %q (%s): dimension must be a constant, got %s", node.Name, node.Op, dim.Type())
			}
			if value := dim.ConstValue(); value.Size() != 1 || value.Flat()[0] != 0 {
				exceptions.Panicf("node %q (%s): only the leading axis (dimension 0) is supported", node.Name, node.Op)
			}
		}
		return graph.Single(op(inputs[0]))
	}
}

func (b *Bridge) randomUniform(node *graphdef.NodeDef, inputs []*graph.Node) graph.Output {
	ax := b.randomShape(node, inputs)
	low := attrFloat(node, "minval", 0)
	high := attrFloat(node, "maxval", 1)
	return graph.Single(graph.Uniform(b.graph, b.rng, ax, attrDType(node, "dtype"), low, high))
}

// randomShape reads a random initializer's shape either from its "shape"
// attribute or, failing that, from a constant shape-vector input.
func (b *Bridge) randomShape(node *graphdef.NodeDef, inputs []*graph.Node) axes.Axes {
	if attr := node.GetAttr("shape"); attr != nil {
		return axes.FromDimensions(attr.Shape...)
	}
	if len(inputs) >= 1 && inputs[0].Type() == graph.NodeTypeConstant {
		flat := inputs[0].ConstValue().Flat()
		dims := make([]int, len(flat))
		for ii, v := range flat {
			dims[ii] = int(v)
		}
		return axes.FromDimensions(dims...)
	}
	exceptions.Panicf("node %q (%s) has neither a %q attribute nor a constant shape input", node.Name, node.Op, "shape")
	return nil
}
