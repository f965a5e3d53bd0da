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
	"github.com/gomlx/exceptions"
)

// This file implements reverse-mode automatic differentiation using
// accumulated VJPs (Vector Jacobian Products).
//
// Conventions:
//
//   - root node: the output whose (summed) value is differentiated.
//   - selected nodes: the nodes with respect to which the gradient of the
//     root is wanted.
//   - adjoint / VJP: the accumulated reverse gradient of the root with
//     respect to a node, with that node's axes. Adjoints are produced in
//     reverse creation order, from the root back to its inputs; the final
//     gradients are the adjoints of the selected nodes.
//
// New nodes created here to express the adjoints are ordinary graph nodes;
// differentiating twice is possible but untested.

// Gradient returns, for each selected node, a new node computing
// d(sum(root)) / d(selected), with the selected node's axes. Summing the
// root makes the derivative well-defined for non-scalar roots: it is the
// derivative contracted with an all-ones adjoint, which is also exactly
// what a finite-difference of sum(root) measures.
//
// Selected nodes with no path to root get an all-zeros gradient. Gradient
// panics on ops that have no VJP defined (the comparisons are treated as
// constant masks and propagate nothing).
func Gradient(root *Node, selected ...*Node) []*Node {
	if !root.HasValue() {
		exceptions.Panicf("Gradient: root %q (%s) has no output value", root.name, root.typ)
	}
	g := root.graph
	for _, sel := range selected {
		if sel.graph != g {
			exceptions.Panicf("Gradient: selected node %q belongs to a different graph", sel.name)
		}
	}

	// Adjoints are accumulated per node id; nodes are created in
	// topological order, so walking ids downward from root visits every
	// consumer before its producers.
	adjoints := make(map[NodeId]*Node)
	adjoints[root.id] = OnesLike(root)
	reachable := reachableFrom(root)

	for id := root.id; id >= 0; id-- {
		if !reachable[id] {
			continue
		}
		node := g.NodeById(id)
		adjoint := adjoints[id]
		if adjoint == nil {
			// Reachable from root but not on a differentiable path.
			continue
		}
		for inputIdx, vjp := range vjpsForNode(node, adjoint) {
			if vjp == nil {
				continue
			}
			input := node.inputs[inputIdx]
			if prev := adjoints[input.id]; prev != nil {
				vjp = Add(prev, vjp)
			}
			adjoints[input.id] = vjp
		}
	}

	grads := make([]*Node, len(selected))
	for ii, sel := range selected {
		if adjoint := adjoints[sel.id]; adjoint != nil {
			grads[ii] = adjoint
		} else {
			grads[ii] = ZerosLike(sel)
		}
	}
	return grads
}

// reachableFrom marks the ids of every node reachable from root, root
// included.
func reachableFrom(root *Node) map[NodeId]bool {
	reachable := make(map[NodeId]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if reachable[n.id] {
			return
		}
		reachable[n.id] = true
		for _, input := range n.inputs {
			visit(input)
		}
	}
	visit(root)
	return reachable
}

// vjpsForNode returns one VJP node per input of node, given the adjoint of
// node's output. A nil entry propagates nothing to that input.
func vjpsForNode(node *Node, adjoint *Node) []*Node {
	x := func(idx int) *Node { return node.inputs[idx] }
	two := func() *Node { return Scalar(node.graph, node.dtype, 2) }

	switch node.typ {
	// Leaves: nothing to propagate.
	case NodeTypePlaceholder, NodeTypeConstant, NodeTypeVariable, NodeTypeFill, NodeTypeUniform:
		return nil

	// Comparisons and index reductions are piecewise constant.
	case NodeTypeEqual, NodeTypeNotEqual, NodeTypeGreater, NodeTypeGreaterOrEqual,
		NodeTypeLess, NodeTypeLessOrEqual, NodeTypeArgMax, NodeTypeArgMin:
		return nil

	case NodeTypeIdentity:
		return []*Node{adjoint}

	case NodeTypeAssign:
		// The gradient flows to the assigned value, not to the variable ref.
		return []*Node{nil, adjoint}

	case NodeTypeNeg:
		return []*Node{Neg(adjoint)}

	case NodeTypeAbs:
		return []*Node{Mul(adjoint, Sign(x(0)))}

	case NodeTypeExp:
		return []*Node{Mul(adjoint, node)}

	case NodeTypeLog:
		return []*Node{Div(adjoint, x(0))}

	case NodeTypeSqrt:
		return []*Node{Div(adjoint, Mul(two(), node))}

	case NodeTypeSquare:
		return []*Node{Mul(adjoint, Mul(two(), x(0)))}

	case NodeTypeReciprocal:
		return []*Node{Neg(Mul(adjoint, Square(node)))}

	case NodeTypeSin:
		return []*Node{Mul(adjoint, Cos(x(0)))}

	case NodeTypeCos:
		return []*Node{Neg(Mul(adjoint, Sin(x(0))))}

	case NodeTypeTanh:
		one := Scalar(node.graph, node.dtype, 1)
		return []*Node{Mul(adjoint, Sub(one, Square(node)))}

	case NodeTypeAdd:
		return []*Node{reduceForOperand(adjoint, x(0)), reduceForOperand(adjoint, x(1))}

	case NodeTypeSub:
		return []*Node{reduceForOperand(adjoint, x(0)), reduceForOperand(Neg(adjoint), x(1))}

	case NodeTypeMul:
		return []*Node{
			reduceForOperand(Mul(adjoint, x(1)), x(0)),
			reduceForOperand(Mul(adjoint, x(0)), x(1)),
		}

	case NodeTypeDiv:
		lhs, rhs := x(0), x(1)
		return []*Node{
			reduceForOperand(Div(adjoint, rhs), lhs),
			reduceForOperand(Neg(Div(Mul(adjoint, lhs), Mul(rhs, rhs))), rhs),
		}

	case NodeTypeMaximum:
		lhs, rhs := x(0), x(1)
		return []*Node{
			reduceForOperand(Mul(adjoint, GreaterOrEqual(lhs, rhs)), lhs),
			reduceForOperand(Mul(adjoint, Less(lhs, rhs)), rhs),
		}

	case NodeTypeMinimum:
		lhs, rhs := x(0), x(1)
		return []*Node{
			reduceForOperand(Mul(adjoint, LessOrEqual(lhs, rhs)), lhs),
			reduceForOperand(Mul(adjoint, Greater(lhs, rhs)), rhs),
		}

	case NodeTypeReduceSum:
		return []*Node{expandReduced(adjoint, x(0), node.ReduceAxis())}

	case NodeTypeReduceMean:
		input := x(0)
		count := reducedCount(input, node.ReduceAxis())
		scaled := Div(adjoint, Scalar(node.graph, node.dtype, float64(count)))
		return []*Node{expandReduced(scaled, input, node.ReduceAxis())}

	case NodeTypeBroadcast:
		axis, _ := node.BroadcastAxisAndLength()
		return []*Node{ReduceSum(adjoint, axis)}

	case NodeTypeDot:
		return dotVJPs(node, adjoint)
	}

	exceptions.Panicf("Gradient: no VJP defined for %s node %q", node.typ, node.name)
	return nil
}

// reduceForOperand adapts an adjoint produced with the output axes of a
// binary op back to the axes of one operand: when the operand was a
// broadcast scalar, the adjoint is summed over every axis.
func reduceForOperand(adjoint *Node, operand *Node) *Node {
	if operand.Rank() == 0 && adjoint.Rank() != 0 {
		return ReduceSum(adjoint, ReduceAllAxes)
	}
	return adjoint
}

// reducedCount returns the number of elements removed by the reduction.
func reducedCount(input *Node, axis int) int {
	if axis == ReduceAllAxes {
		return input.axes.Size()
	}
	return input.axes[axis].Length
}

// expandReduced broadcasts the adjoint of a reduction back to the axes of
// the reduction's input.
func expandReduced(adjoint *Node, input *Node, axis int) *Node {
	if axis == ReduceAllAxes {
		// Scalar adjoint broadcasts against a same-axes ones tensor.
		return Mul(OnesLike(input), adjoint)
	}
	return Broadcast(adjoint, input.axes[axis], axis)
}

// dotVJPs returns the VJPs for both operands of a Dot node, handling the
// four transpose combinations.
func dotVJPs(node *Node, adjoint *Node) []*Node {
	lhs, rhs := node.inputs[0], node.inputs[1]
	tLhs, tRhs := node.DotTransposes()

	var dLhs *Node
	if !tLhs {
		dLhs = Dot(adjoint, rhs, false, !tRhs)
	} else {
		dLhs = Dot(rhs, adjoint, tRhs, true)
	}

	var dRhs *Node
	if !tRhs {
		dRhs = Dot(lhs, adjoint, !tLhs, false)
	} else {
		dRhs = Dot(adjoint, lhs, true, tLhs)
	}
	return []*Node{dLhs, dRhs}
}
