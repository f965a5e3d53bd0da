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

// Package graph implements the internal operation graph: typed nodes with
// symbolic axes, single or tuple outputs, and reverse-mode automatic
// differentiation.
//
// The main elements in the package are:
//
//   - Graph: owns every Node created in it. A Graph is typically populated
//     by the importer package from an external node list, or directly
//     through the op constructors (Placeholder, Constant, Add, Dot, ...).
//
//   - Node: the result of one operation. Each node carries a symbolic axes
//     specification (see the axes package) that a transformer later lowers
//     to concrete storage. Nodes form a DAG through their inputs; a node
//     never outlives its Graph.
//
//   - Output: a tagged variant for the result of importing one external
//     node, either a single Node or an ordered tuple of Nodes, so callers
//     never branch on arity ad hoc.
//
//   - Gradient: reverse-mode autodiff over the graph, used by the
//     transformer to build symbolic derivative executors.
//
// Errors during graph building are reported as panics with stack traces
// (github.com/gomlx/exceptions), since they indicate structural bugs, not
// runtime conditions. Execution-time errors are returned as ordinary Go
// errors by the transform package.
package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/types/axes"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/google/uuid"
)

// GraphId uniquely identifies a Graph within the process.
type GraphId = uuid.UUID

// NodeId is the id of a Node within its Graph. Nodes are numbered in
// creation order, so ids are also a topological order of the DAG: a node's
// inputs always have smaller ids.
type NodeId int

// InvalidNodeId is returned on query methods of invalid nodes.
const InvalidNodeId = NodeId(-1)

// Graph holds the operations and dependencies of a computation. All nodes
// are owned by the graph that created them; mixing nodes of different
// graphs in one operation panics.
type Graph struct {
	id    GraphId
	name  string
	nodes []*Node
}

// New creates an empty named Graph.
func New(name string) *Graph {
	return &Graph{id: uuid.New(), name: name}
}

// Id returns the unique id of the graph.
func (g *Graph) Id() GraphId {
	return g.id
}

// Name of the graph.
func (g *Graph) Name() string {
	return g.name
}

// NumNodes returns the number of nodes created in the graph so far.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// NodeById returns the node with the given id. It panics on invalid ids.
func (g *Graph) NodeById(id NodeId) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		exceptions.Panicf("graph %q has no node with id %d", g.name, id)
	}
	return g.nodes[id]
}

// newNode registers a node of the given type, axes and dtype in the graph
// and returns it. All op constructors funnel through here.
func (g *Graph) newNode(typ NodeType, ax axes.Axes, dtype shapes.DType, inputs ...*Node) *Node {
	if g == nil {
		exceptions.Panicf("cannot create %s node on a nil Graph", typ)
	}
	for _, input := range inputs {
		if input == nil {
			exceptions.Panicf("graph %q: nil input creating %s node", g.name, typ)
		}
		if input.graph != g {
			exceptions.Panicf("graph %q: input node %q belongs to a different graph (%q)",
				g.name, input.name, input.graph.name)
		}
	}
	n := &Node{
		graph:  g,
		id:     NodeId(len(g.nodes)),
		typ:    typ,
		axes:   ax,
		dtype:  dtype,
		inputs: inputs,
	}
	n.name = fmt.Sprintf("%s_%d", strings.ToLower(typ.String()), n.id)
	g.nodes = append(g.nodes, n)
	return n
}

// String lists the nodes of the graph, one per line.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph %q (%s): %d nodes\n", g.name, g.id, len(g.nodes))
	for _, n := range g.nodes {
		fmt.Fprintf(&sb, "  #%d\t%s\n", n.id, n)
	}
	return sb.String()
}
