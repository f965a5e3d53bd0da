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
)

// Output is the tagged variant for the result of importing one external
// node: a single Node, an ordered tuple of Nodes (for multi-output external
// nodes), or missing -- the sentinel for nodes whose construction was
// skipped because an input was unresolved or its type unsupported.
//
// The zero value of Output is the missing sentinel.
type Output struct {
	nodes []*Node
	tuple bool
}

// Missing returns the missing sentinel Output.
func Missing() Output {
	return Output{}
}

// Single wraps one node as an Output.
func Single(n *Node) Output {
	if n == nil {
		exceptions.Panicf("graph.Single: nil node; use graph.Missing for missing outputs")
	}
	return Output{nodes: []*Node{n}}
}

// Tuple wraps an ordered fixed-arity sequence of nodes as an Output.
func Tuple(nodes ...*Node) Output {
	for ii, n := range nodes {
		if n == nil {
			exceptions.Panicf("graph.Tuple: nil node at index %d", ii)
		}
	}
	return Output{nodes: nodes, tuple: true}
}

// IsMissing returns whether this is the missing sentinel.
func (o Output) IsMissing() bool {
	return o.nodes == nil
}

// IsTuple returns whether the output is a tuple of nodes.
func (o Output) IsTuple() bool {
	return o.tuple
}

// Len returns the number of nodes: 0 for missing, 1 for single, the tuple
// arity otherwise.
func (o Output) Len() int {
	return len(o.nodes)
}

// Node returns the single node of a non-tuple output. It panics on missing
// or tuple outputs: callers are expected to have branched on the tag.
func (o Output) Node() *Node {
	if o.IsMissing() {
		exceptions.Panicf("Output.Node on a missing output")
	}
	if o.tuple {
		exceptions.Panicf("Output.Node on a tuple output of %d nodes, use Output.At", len(o.nodes))
	}
	return o.nodes[0]
}

// At returns the index-th node of the output. For a single (non-tuple)
// output only index 0 is valid -- the default output of a producer.
func (o Output) At(index int) *Node {
	if o.IsMissing() {
		exceptions.Panicf("Output.At(%d) on a missing output", index)
	}
	if index < 0 || index >= len(o.nodes) {
		exceptions.Panicf("Output.At(%d) out of range: output has %d nodes", index, len(o.nodes))
	}
	return o.nodes[index]
}

// Nodes returns the flattened nodes of the output, nil when missing. The
// returned slice is owned by the Output.
func (o Output) Nodes() []*Node {
	return o.nodes
}

// Repack builds an Output of the same arity kind as o from the given nodes.
// The importer uses it to restore the bridge's original arity after
// post-processing the flattened nodes.
func (o Output) Repack(nodes []*Node) Output {
	if o.tuple {
		return Tuple(nodes...)
	}
	if len(nodes) != 1 {
		exceptions.Panicf("Output.Repack: single output repacked with %d nodes", len(nodes))
	}
	return Single(nodes[0])
}

// String implements fmt.Stringer.
func (o Output) String() string {
	if o.IsMissing() {
		return "Missing"
	}
	if !o.tuple {
		return fmt.Sprintf("Single(%s)", o.nodes[0].Name())
	}
	names := make([]string, 0, len(o.nodes))
	for _, n := range o.nodes {
		names = append(names, n.Name())
	}
	return fmt.Sprintf("Tuple(%s)", strings.Join(names, ", "))
}
