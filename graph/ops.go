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

package graph

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/types/axes"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/gomlx/tfgraph/types/tensors"
)

// This file holds the op constructors. Shape (axes) inference happens here,
// at graph building time; mismatches panic with a stack trace. The
// transformer assumes every node it sees has consistent axes.

// Placeholder creates an input node: a named operation whose concrete value
// is fed by the caller at execution time.
func Placeholder(g *Graph, name string, ax axes.Axes, dtype shapes.DType) *Node {
	if !dtype.IsSupported() {
		exceptions.Panicf("Placeholder(%q): unsupported dtype %s", name, dtype)
	}
	n := g.newNode(NodeTypePlaceholder, ax, dtype)
	n.SetName(name)
	return n
}

// Constant creates a node holding the given tensor literal.
func Constant(g *Graph, value *tensors.Tensor) *Node {
	n := g.newNode(NodeTypeConstant, axes.FromDimensions(value.Shape().Dimensions...), value.Shape().DType)
	n.data = &constantData{value: value}
	return n
}

// Scalar creates a constant scalar node of the given dtype.
func Scalar(g *Graph, dtype shapes.DType, value float64) *Node {
	t := tensors.New(shapes.Scalar(dtype))
	t.Fill(value)
	return Constant(g, t)
}

// Variable creates a stateful node: its storage is allocated once per
// transformer and persists across executor calls, so Assign nodes executed
// by an initializer are visible to later forward executions.
func Variable(g *Graph, name string, ax axes.Axes, dtype shapes.DType) *Node {
	n := g.newNode(NodeTypeVariable, ax, dtype)
	n.SetName(name)
	return n
}

// Fill creates a node whose value is the given axes filled with a constant.
func Fill(g *Graph, ax axes.Axes, dtype shapes.DType, value float64) *Node {
	n := g.newNode(NodeTypeFill, ax, dtype)
	n.data = &fillData{value: value}
	return n
}

// OnesLike returns a Fill of 1s with the same axes and dtype as the node.
func OnesLike(n *Node) *Node {
	return Fill(n.graph, n.axes, n.dtype, 1)
}

// ZerosLike returns a Fill of 0s with the same axes and dtype as the node.
func ZerosLike(n *Node) *Node {
	return Fill(n.graph, n.axes, n.dtype, 0)
}

// Uniform creates an allocation node: its storage is filled, on first
// materialization, with uniform random values in [low, high) drawn from
// the caller-supplied backend-specific generator handle. See
// Node.AllocationFill.
func Uniform(g *Graph, rng any, ax axes.Axes, dtype shapes.DType, low, high float64) *Node {
	if low >= high {
		exceptions.Panicf("Uniform: low (%g) must be < high (%g)", low, high)
	}
	n := g.newNode(NodeTypeUniform, ax, dtype)
	n.data = &uniformData{rng: rng, low: low, high: high}
	return n
}

// Identity returns a node that forwards its input unchanged.
func Identity(x *Node) *Node {
	return x.graph.newNode(NodeTypeIdentity, x.axes, x.dtype, x)
}

// Assign creates a node that, when executed, overwrites the target
// Variable's persistent storage with the value and forwards the value. The
// target must be a Variable with the same dimensions as value.
func Assign(target, value *Node) *Node {
	if target.typ != NodeTypeVariable {
		exceptions.Panicf("Assign: target %q is a %s, want Variable", target.name, target.typ)
	}
	if !slices.Equal(target.axes.Lengths(), value.axes.Lengths()) {
		exceptions.Panicf("Assign: target %q axes %s incompatible with value axes %s",
			target.name, target.axes, value.axes)
	}
	return target.graph.newNode(NodeTypeAssign, value.axes, value.dtype, target, value)
}

// NoOp creates a node with no output value, used to aggregate control
// dependencies -- e.g. the well-known "init" node grouping the variable
// initializers of an imported graph.
func NoOp(g *Graph, deps ...*Node) *Node {
	return g.newNode(NodeTypeNoOp, nil, shapes.InvalidDType, deps...)
}

func unaryOp(typ NodeType, x *Node) *Node {
	if !x.HasValue() {
		exceptions.Panicf("%s: input %q has no output value", typ, x.name)
	}
	return x.graph.newNode(typ, x.axes, x.dtype, x)
}

// Neg returns element-wise -x.
func Neg(x *Node) *Node { return unaryOp(NodeTypeNeg, x) }

// Abs returns element-wise |x|.
func Abs(x *Node) *Node { return unaryOp(NodeTypeAbs, x) }

// Sign returns element-wise -1, 0 or 1.
func Sign(x *Node) *Node { return unaryOp(NodeTypeSign, x) }

// Exp returns element-wise e^x.
func Exp(x *Node) *Node { return unaryOp(NodeTypeExp, x) }

// Log returns element-wise natural logarithm.
func Log(x *Node) *Node { return unaryOp(NodeTypeLog, x) }

// Sqrt returns element-wise square root.
func Sqrt(x *Node) *Node { return unaryOp(NodeTypeSqrt, x) }

// Square returns element-wise x².
func Square(x *Node) *Node { return unaryOp(NodeTypeSquare, x) }

// Reciprocal returns element-wise 1/x.
func Reciprocal(x *Node) *Node { return unaryOp(NodeTypeReciprocal, x) }

// Sin returns element-wise sine.
func Sin(x *Node) *Node { return unaryOp(NodeTypeSin, x) }

// Cos returns element-wise cosine.
func Cos(x *Node) *Node { return unaryOp(NodeTypeCos, x) }

// Tanh returns element-wise hyperbolic tangent.
func Tanh(x *Node) *Node { return unaryOp(NodeTypeTanh, x) }

// Sigmoid returns element-wise 1/(1+e^-x), composed from primitive ops so
// every backend kernel stays in the catalog of the reference backend.
func Sigmoid(x *Node) *Node {
	one := Scalar(x.graph, x.dtype, 1)
	return Reciprocal(Add(one, Exp(Neg(x))))
}

// binaryAxes infers the output axes of an element-wise binary op: equal
// dimensions operate element-wise, and a scalar operand broadcasts against
// the other. Anything else is an axes-inference bug upstream.
func binaryAxes(typ NodeType, lhs, rhs *Node) axes.Axes {
	if !lhs.HasValue() || !rhs.HasValue() {
		exceptions.Panicf("%s: inputs %q, %q must have output values", typ, lhs.name, rhs.name)
	}
	if lhs.Rank() == 0 {
		return rhs.axes
	}
	if rhs.Rank() == 0 {
		return lhs.axes
	}
	if !slices.Equal(lhs.axes.Lengths(), rhs.axes.Lengths()) {
		exceptions.Panicf("%s: incompatible axes %s and %s", typ, lhs.axes, rhs.axes)
	}
	return lhs.axes
}

func binaryOp(typ NodeType, lhs, rhs *Node) *Node {
	ax := binaryAxes(typ, lhs, rhs)
	return lhs.graph.newNode(typ, ax, lhs.dtype, lhs, rhs)
}

// Add returns element-wise lhs+rhs. A scalar operand broadcasts.
func Add(lhs, rhs *Node) *Node { return binaryOp(NodeTypeAdd, lhs, rhs) }

// Sub returns element-wise lhs-rhs. A scalar operand broadcasts.
func Sub(lhs, rhs *Node) *Node { return binaryOp(NodeTypeSub, lhs, rhs) }

// Mul returns element-wise lhs*rhs. A scalar operand broadcasts.
func Mul(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMul, lhs, rhs) }

// Div returns element-wise lhs/rhs. A scalar operand broadcasts.
func Div(lhs, rhs *Node) *Node { return binaryOp(NodeTypeDiv, lhs, rhs) }

// Maximum returns element-wise max(lhs, rhs).
func Maximum(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMaximum, lhs, rhs) }

// Minimum returns element-wise min(lhs, rhs).
func Minimum(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMinimum, lhs, rhs) }

func compareOp(typ NodeType, lhs, rhs *Node) *Node {
	ax := binaryAxes(typ, lhs, rhs)
	return lhs.graph.newNode(typ, ax, shapes.Bool, lhs, rhs)
}

// Equal returns the element-wise comparison lhs == rhs, as Bool.
func Equal(lhs, rhs *Node) *Node { return compareOp(NodeTypeEqual, lhs, rhs) }

// NotEqual returns the element-wise comparison lhs != rhs, as Bool.
func NotEqual(lhs, rhs *Node) *Node { return compareOp(NodeTypeNotEqual, lhs, rhs) }

// Greater returns the element-wise comparison lhs > rhs, as Bool.
func Greater(lhs, rhs *Node) *Node { return compareOp(NodeTypeGreater, lhs, rhs) }

// GreaterOrEqual returns the element-wise comparison lhs >= rhs, as Bool.
func GreaterOrEqual(lhs, rhs *Node) *Node { return compareOp(NodeTypeGreaterOrEqual, lhs, rhs) }

// Less returns the element-wise comparison lhs < rhs, as Bool.
func Less(lhs, rhs *Node) *Node { return compareOp(NodeTypeLess, lhs, rhs) }

// LessOrEqual returns the element-wise comparison lhs <= rhs, as Bool.
func LessOrEqual(lhs, rhs *Node) *Node { return compareOp(NodeTypeLessOrEqual, lhs, rhs) }

func reduceOp(typ NodeType, x *Node, axis int) *Node {
	if !x.HasValue() {
		exceptions.Panicf("%s: input %q has no output value", typ, x.name)
	}
	var ax axes.Axes
	if axis != ReduceAllAxes {
		if axis < 0 || axis >= x.Rank() {
			exceptions.Panicf("%s: axis %d out of range for %s", typ, axis, x.axes)
		}
		ax = slices.Concat(x.axes[:axis], x.axes[axis+1:])
	}
	n := x.graph.newNode(typ, ax, x.dtype, x)
	n.data = &reduceData{axis: axis}
	return n
}

// ReduceSum sums x over the given axis, or over every axis when axis is
// ReduceAllAxes (yielding a scalar). The reduced axis is removed.
func ReduceSum(x *Node, axis int) *Node { return reduceOp(NodeTypeReduceSum, x, axis) }

// ReduceMean averages x over the given axis, or over every axis when axis
// is ReduceAllAxes.
func ReduceMean(x *Node, axis int) *Node { return reduceOp(NodeTypeReduceMean, x, axis) }

// ReduceMax takes the maximum over the given axis, or over every axis when
// axis is ReduceAllAxes.
func ReduceMax(x *Node, axis int) *Node { return reduceOp(NodeTypeReduceMax, x, axis) }

// ReduceMin takes the minimum over the given axis, or over every axis when
// axis is ReduceAllAxes.
func ReduceMin(x *Node, axis int) *Node { return reduceOp(NodeTypeReduceMin, x, axis) }

func argOp(typ NodeType, x *Node) *Node {
	if !x.HasValue() {
		exceptions.Panicf("%s: input %q has no output value", typ, x.name)
	}
	if x.Rank() < 1 {
		exceptions.Panicf("%s: input %q is a scalar, need at least one axis", typ, x.name)
	}
	return x.graph.newNode(typ, x.axes[1:].Clone(), shapes.Int64, x)
}

// ArgMax returns the index, along the leading axis, of the maximum of x.
// The leading axis is removed and the result is Int64.
func ArgMax(x *Node) *Node { return argOp(NodeTypeArgMax, x) }

// ArgMin returns the index, along the leading axis, of the minimum of x.
// The leading axis is removed and the result is Int64.
func ArgMin(x *Node) *Node { return argOp(NodeTypeArgMin, x) }

// Broadcast inserts a new axis at the given position and repeats x along
// it. It is the adjoint of an axis reduction, and the only rank-increasing
// op of the graph.
func Broadcast(x *Node, newAxis axes.Axis, position int) *Node {
	if position < 0 || position > x.Rank() {
		exceptions.Panicf("Broadcast: position %d out of range for %s", position, x.axes)
	}
	ax := slices.Concat(x.axes[:position:position], axes.Axes{newAxis}, x.axes[position:])
	n := x.graph.newNode(NodeTypeBroadcast, ax, x.dtype, x)
	n.data = &broadcastData{axis: position, length: newAxis.Length}
	return n
}

// Dot returns the matrix product of two rank-2 nodes, optionally
// transposing either operand first. The contracted dimensions must match.
func Dot(lhs, rhs *Node, transposeLhs, transposeRhs bool) *Node {
	if lhs.Rank() != 2 || rhs.Rank() != 2 {
		exceptions.Panicf("Dot: operands must have rank 2, got %s and %s", lhs.axes, rhs.axes)
	}
	lhsRow, lhsCol := lhs.axes[0], lhs.axes[1]
	if transposeLhs {
		lhsRow, lhsCol = lhsCol, lhsRow
	}
	rhsRow, rhsCol := rhs.axes[0], rhs.axes[1]
	if transposeRhs {
		rhsRow, rhsCol = rhsCol, rhsRow
	}
	if lhsCol.Length != rhsRow.Length {
		exceptions.Panicf("Dot: contracted dimensions don't match: %s (%s) x %s (%s)",
			lhs.axes, lhsCol, rhs.axes, rhsRow)
	}
	n := lhs.graph.newNode(NodeTypeDot, axes.Of(lhsRow, rhsCol), lhs.dtype, lhs, rhs)
	n.data = &dotData{transposeLhs: transposeLhs, transposeRhs: transposeRhs}
	return n
}

// MatMul is Dot without transposes.
func MatMul(lhs, rhs *Node) *Node {
	return Dot(lhs, rhs, false, false)
}
