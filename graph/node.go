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
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/types/axes"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/gomlx/tfgraph/types/tensors"
)

// NodeType identifies the operation performed by a Node.
type NodeType int

const (
	NodeTypeInvalid NodeType = iota

	// Leaves.
	NodeTypePlaceholder
	NodeTypeConstant
	NodeTypeVariable
	NodeTypeFill
	NodeTypeUniform

	// Structural.
	NodeTypeIdentity
	NodeTypeAssign
	NodeTypeNoOp
	NodeTypeBroadcast

	// Unary.
	NodeTypeNeg
	NodeTypeAbs
	NodeTypeSign
	NodeTypeExp
	NodeTypeLog
	NodeTypeSqrt
	NodeTypeSquare
	NodeTypeReciprocal
	NodeTypeSin
	NodeTypeCos
	NodeTypeTanh

	// Binary.
	NodeTypeAdd
	NodeTypeSub
	NodeTypeMul
	NodeTypeDiv
	NodeTypeMaximum
	NodeTypeMinimum

	// Comparisons.
	NodeTypeEqual
	NodeTypeNotEqual
	NodeTypeGreater
	NodeTypeGreaterOrEqual
	NodeTypeLess
	NodeTypeLessOrEqual

	// Reductions and contractions.
	NodeTypeReduceSum
	NodeTypeReduceMean
	NodeTypeReduceMax
	NodeTypeReduceMin
	NodeTypeArgMax
	NodeTypeArgMin
	NodeTypeDot
)

var nodeTypeNames = map[NodeType]string{
	NodeTypePlaceholder:    "Placeholder",
	NodeTypeConstant:       "Constant",
	NodeTypeVariable:       "Variable",
	NodeTypeFill:           "Fill",
	NodeTypeUniform:        "Uniform",
	NodeTypeIdentity:       "Identity",
	NodeTypeAssign:         "Assign",
	NodeTypeNoOp:           "NoOp",
	NodeTypeBroadcast:      "Broadcast",
	NodeTypeNeg:            "Neg",
	NodeTypeAbs:            "Abs",
	NodeTypeSign:           "Sign",
	NodeTypeExp:            "Exp",
	NodeTypeLog:            "Log",
	NodeTypeSqrt:           "Sqrt",
	NodeTypeSquare:         "Square",
	NodeTypeReciprocal:     "Reciprocal",
	NodeTypeSin:            "Sin",
	NodeTypeCos:            "Cos",
	NodeTypeTanh:           "Tanh",
	NodeTypeAdd:            "Add",
	NodeTypeSub:            "Sub",
	NodeTypeMul:            "Mul",
	NodeTypeDiv:            "Div",
	NodeTypeMaximum:        "Maximum",
	NodeTypeMinimum:        "Minimum",
	NodeTypeEqual:          "Equal",
	NodeTypeNotEqual:       "NotEqual",
	NodeTypeGreater:        "Greater",
	NodeTypeGreaterOrEqual: "GreaterOrEqual",
	NodeTypeLess:           "Less",
	NodeTypeLessOrEqual:    "LessOrEqual",
	NodeTypeReduceSum:      "ReduceSum",
	NodeTypeReduceMean:     "ReduceMean",
	NodeTypeReduceMax:      "ReduceMax",
	NodeTypeReduceMin:      "ReduceMin",
	NodeTypeArgMax:         "ArgMax",
	NodeTypeArgMin:         "ArgMin",
	NodeTypeDot:            "Dot",
}

// String implements fmt.Stringer.
func (t NodeType) String() string {
	if name, found := nodeTypeNames[t]; found {
		return name
	}
	return "Invalid"
}

// ReduceAllAxes is the sentinel axis for reductions over every axis.
const ReduceAllAxes = -1

// Per-type node parameters, stored in Node.data.
type (
	constantData struct {
		value *tensors.Tensor
	}
	fillData struct {
		value float64
	}
	uniformData struct {
		rng       any
		low, high float64
	}
	reduceData struct {
		axis int // ReduceAllAxes reduces over all axes.
	}
	dotData struct {
		transposeLhs, transposeRhs bool
	}
	broadcastData struct {
		axis, length int
	}
)

// Node is one operation of the Graph. It is identified within the graph by
// its name; the importer rewrites names during post-processing (see
// SetName), which is the only mutation a Node suffers after construction.
type Node struct {
	graph  *Graph
	id     NodeId
	name   string
	typ    NodeType
	axes   axes.Axes
	dtype  shapes.DType
	inputs []*Node

	// data holds the per-type parameters (constantData, reduceData, ...).
	data any
}

// Graph that owns this node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id of the node within its graph. Ids follow creation order, which is a
// topological order of the DAG.
func (n *Node) Id() NodeId {
	if n == nil {
		return InvalidNodeId
	}
	return n.id
}

// Type of the operation performed by the node.
func (n *Node) Type() NodeType {
	if n == nil {
		return NodeTypeInvalid
	}
	return n.typ
}

// Name of the node. Defaults to "<type>_<id>"; the importer overwrites it
// with the (sanitized) external node name.
func (n *Node) Name() string {
	return n.name
}

// SetName rewrites the node's exposed name. The importer uses it to
// sanitize imported names so they are safe for regeneration into downstream
// representations.
func (n *Node) SetName(name string) {
	n.name = name
}

// Axes returns the symbolic axes specification of the node's output. NoOp
// nodes have no output and return nil.
func (n *Node) Axes() axes.Axes {
	return n.axes
}

// DType of the node's output.
func (n *Node) DType() shapes.DType {
	return n.dtype
}

// Rank of the node's output.
func (n *Node) Rank() int {
	return n.axes.Rank()
}

// Shape lowers the node's symbolic axes to a concrete shape. It panics on
// nodes without an output value (NoOp).
func (n *Node) Shape() shapes.Shape {
	if !n.HasValue() {
		exceptions.Panicf("node %q (%s) has no output value", n.name, n.typ)
	}
	return n.axes.Shape(n.dtype)
}

// HasValue returns whether the node produces an output value. NoOp nodes
// exist only for their control dependencies.
func (n *Node) HasValue() bool {
	return n.dtype != shapes.InvalidDType
}

// Inputs returns the nodes that are direct inputs to this node. The
// returned slice is owned by the node and must not be modified.
func (n *Node) Inputs() []*Node {
	return n.inputs
}

// NumInputs returns the number of inputs of the node.
func (n *Node) NumInputs() int {
	return len(n.inputs)
}

// ConstValue returns the tensor literal of a Constant node. It panics on
// other node types.
func (n *Node) ConstValue() *tensors.Tensor {
	if n.typ != NodeTypeConstant {
		exceptions.Panicf("node %q (%s) is not a Constant", n.name, n.typ)
	}
	return n.data.(*constantData).value
}

// ReduceAxis returns the reduction axis of a reduction node, or
// ReduceAllAxes. It panics on other node types.
func (n *Node) ReduceAxis() int {
	switch n.typ {
	case NodeTypeReduceSum, NodeTypeReduceMean, NodeTypeReduceMax, NodeTypeReduceMin:
		return n.data.(*reduceData).axis
	}
	exceptions.Panicf("node %q (%s) is not a reduction", n.name, n.typ)
	return ReduceAllAxes
}

// DotTransposes returns the transpose flags of a Dot node.
func (n *Node) DotTransposes() (lhs, rhs bool) {
	if n.typ != NodeTypeDot {
		exceptions.Panicf("node %q (%s) is not a Dot", n.name, n.typ)
	}
	data := n.data.(*dotData)
	return data.transposeLhs, data.transposeRhs
}

// FillValue returns the fill constant of a Fill node.
func (n *Node) FillValue() float64 {
	if n.typ != NodeTypeFill {
		exceptions.Panicf("node %q (%s) is not a Fill", n.name, n.typ)
	}
	return n.data.(*fillData).value
}

// BroadcastAxisAndLength returns the inserted axis position and length of a
// Broadcast node.
func (n *Node) BroadcastAxisAndLength() (axis, length int) {
	if n.typ != NodeTypeBroadcast {
		exceptions.Panicf("node %q (%s) is not a Broadcast", n.name, n.typ)
	}
	data := n.data.(*broadcastData)
	return data.axis, data.length
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	parts := make([]string, 0, len(n.inputs))
	for _, input := range n.inputs {
		parts = append(parts, input.name)
	}
	if !n.HasValue() {
		return fmt.Sprintf("%s[%s](%s)", n.typ, n.name, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s[%s](%s) -> %s", n.typ, n.name, strings.Join(parts, ", "), n.axes)
}

// Materializer is the capability an allocation node needs from the
// transformer to produce its initial contents. It is implemented by the
// transform package; defined here so allocation nodes stay decoupled from
// any concrete backend.
type Materializer interface {
	// UniformTensor returns a new tensor for the given description, filled
	// with uniform random values in [low, high) drawn from the given
	// backend-specific generator handle.
	UniformTensor(rng any, desc tensors.Description, low, high float64) (*tensors.Tensor, error)
}

// AllocationFill resolves the deferred allocation of the node: given the
// transformer and the node's tensor description, it returns the initial
// contents, or nil for ordinary nodes whose storage starts zeroed. This is
// the one place non-determinism (the random generator handle captured by an
// allocation node) enters the otherwise pure graph.
func (n *Node) AllocationFill(m Materializer, desc tensors.Description) (*tensors.Tensor, error) {
	if n.typ != NodeTypeUniform {
		return nil, nil
	}
	data := n.data.(*uniformData)
	return m.UniformTensor(data.rng, desc, data.low, data.high)
}

// IsAllocation returns whether the node carries a deferred allocation
// closure (see AllocationFill).
func (n *Node) IsAllocation() bool {
	return n.typ == NodeTypeUniform
}
