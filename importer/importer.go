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

// Package importer rebuilds an internal operation graph from an externally
// serialized node list (see the graphdef package).
//
// The import runs two passes over the same ordered list. A discovery pass
// records which assignment nodes feed the designated aggregate initializer
// (the "NoOp" node named "init"), so the ops bridge can special-case them.
// A construction pass then, in declaration order, resolves each node's
// input references, dispatches the node through the bridge and records the
// result in a name table queried by later nodes and by callers.
//
// Nodes with unsupported operation types, and any node depending on them,
// become "missing" instead of failing the import: interchange graphs from
// export-heavy producers routinely contain partially-unsupported subgraphs
// that the caller's outputs of interest never reach. Strict mode (see
// WithStrict) turns that soft policy into hard errors. Malformed reference
// strings are fatal either way.
package importer

import (
	"sort"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/graph"
	"github.com/gomlx/tfgraph/graphdef"
	"github.com/gomlx/tfgraph/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InitializerName is the well-known name of the aggregate initializer
// node: a "NoOp" whose control dependencies are the variable assignments
// to run before the first forward execution.
const InitializerName = "init"

// Importer drives the two-pass import. Re-entrant via Reset, which clears
// every piece of session state; the name table itself is insert-once, so
// re-importing without Reset fails on the first duplicate name.
type Importer struct {
	strict bool
	rng    any

	session   uuid.UUID
	graph     *graph.Graph
	bridge    *Bridge
	nameTable map[string]graph.Output
	initOps   []*graph.Node
}

// Option configures an Importer at construction.
type Option func(*Importer)

// WithStrict makes missing-input propagation and unsupported operation
// types hard errors instead of soft "missing" entries.
func WithStrict() Option {
	return func(imp *Importer) { imp.strict = true }
}

// WithRng supplies the backend random-generator handle used by random
// initializer operations (see graph.Uniform). Without it, importing a
// graph with such operations still succeeds, but materializing them fails.
func WithRng(handle any) Option {
	return func(imp *Importer) { imp.rng = handle }
}

// New creates an Importer ready to Parse.
func New(options ...Option) *Importer {
	imp := &Importer{}
	for _, option := range options {
		option(imp)
	}
	imp.Reset()
	return imp
}

// Reset clears all session state: the name table, the ops bridge with its
// assignment-dependency set, the initializer list and the target graph.
// Operations from before the reset remain valid but belong to the previous
// session's graph.
func (imp *Importer) Reset() {
	imp.session = uuid.New()
	imp.graph = graph.New("imported")
	imp.bridge = NewBridge(imp.graph, imp.rng)
	imp.nameTable = make(map[string]graph.Output)
	imp.initOps = nil
}

// Graph returns the graph operations are built into. A fresh (empty) graph
// after each Reset.
func (imp *Importer) Graph() *graph.Graph {
	return imp.graph
}

// InitOps returns the operations built for the aggregate initializer
// nodes, in import order. Callers execute them once before the first
// forward pass.
func (imp *Importer) InitOps() []*graph.Node {
	return imp.initOps
}

// Parse imports an external node list. With verbose, every node is logged
// as it is processed. The external format guarantees nodes are declared
// before they are referenced, so a single construction pass in list order
// suffices.
func (imp *Importer) Parse(graphDef *graphdef.GraphDef, verbose bool) error {
	// Discovery pass: union the initializer's input base-names into the
	// bridge's assignment-dependency set. Must complete before any node
	// is dispatched.
	for _, node := range graphDef.Node {
		if node.Op != "NoOp" || node.Name != InitializerName {
			continue
		}
		for _, raw := range node.Input {
			ref, err := ParseReference(raw)
			if err != nil {
				return errors.WithMessagef(err, "importer[%s]: initializer %q", imp.session, node.Name)
			}
			imp.bridge.MarkInitAssign(ref.Base)
		}
	}

	// Construction pass.
	for _, node := range graphDef.Node {
		if verbose {
			klog.Infof("importer[%s]: node %q op=%s inputs=%v", imp.session, node.Name, node.Op, node.Input)
		} else {
			klog.V(2).Infof("importer[%s]: node %q op=%s", imp.session, node.Name, node.Op)
		}
		if _, found := imp.nameTable[node.Name]; found {
			return errors.Errorf("importer[%s]: duplicate node name %q: table entries are final, Reset before re-importing",
				imp.session, node.Name)
		}

		inputs, missing, err := imp.resolveInputs(node)
		if err != nil {
			return err
		}

		var output graph.Output
		switch {
		case missing != "":
			if imp.strict {
				return errors.Errorf("importer[%s]: node %q depends on %q, which was not imported",
					imp.session, node.Name, missing)
			}
			klog.V(1).Infof("importer[%s]: node %q skipped, input %q missing", imp.session, node.Name, missing)
			output = graph.Missing()
		default:
			output, err = imp.dispatch(node, inputs)
			if err != nil {
				if errors.Is(err, ErrUnsupportedOp) && !imp.strict {
					klog.V(1).Infof("importer[%s]: %v", imp.session, err)
					output = graph.Missing()
					break
				}
				return errors.WithMessagef(err, "importer[%s]", imp.session)
			}
		}

		output = sanitizeNames(output)
		imp.nameTable[node.Name] = output
		if node.Op == "NoOp" && node.Name == InitializerName && !output.IsMissing() {
			imp.initOps = append(imp.initOps, output.Node())
		}
	}
	return nil
}

// resolveInputs resolves a node's declared input references, data inputs
// first then control-only dependencies. A reference to a name absent from
// the table (or recorded missing) does not resolve: the first such
// reference is returned as missing and the node is skipped.
func (imp *Importer) resolveInputs(node *graphdef.NodeDef) (inputs []*graph.Node, missing string, err error) {
	var controls []*graph.Node
	for _, raw := range node.Input {
		ref, err := ParseReference(raw)
		if err != nil {
			return nil, "", errors.WithMessagef(err, "importer[%s]: node %q", imp.session, node.Name)
		}
		entry, found := imp.nameTable[ref.Base]
		if !found || entry.IsMissing() {
			return nil, raw, nil
		}
		resolved, err := selectOutput(entry, ref)
		if err != nil {
			return nil, "", errors.WithMessagef(err, "importer[%s]: node %q", imp.session, node.Name)
		}
		if ref.Control {
			controls = append(controls, resolved)
		} else {
			inputs = append(inputs, resolved)
		}
	}
	return append(inputs, controls...), "", nil
}

// selectOutput picks one operation out of a table entry, honoring the
// reference's output index. An unsuffixed reference to a tuple entry
// selects its first output.
func selectOutput(entry graph.Output, ref Reference) (*graph.Node, error) {
	if !entry.IsTuple() {
		if ref.OutputIndex != 0 {
			return nil, errors.Errorf("reference %q selects output %d of a single-output node", ref, ref.OutputIndex)
		}
		return entry.Node(), nil
	}
	if ref.OutputIndex >= entry.Len() {
		return nil, errors.Errorf("reference %q selects output %d of a %d-output node", ref, ref.OutputIndex, entry.Len())
	}
	return entry.At(ref.OutputIndex), nil
}

// dispatch calls the ops bridge, converting construction panics into
// returned errors.
func (imp *Importer) dispatch(node *graphdef.NodeDef, inputs []*graph.Node) (output graph.Output, err error) {
	caught := exceptions.TryCatch[error](func() {
		output, err = imp.bridge.Dispatch(node, inputs)
	})
	if caught != nil {
		return graph.Missing(), caught
	}
	return output, err
}

// sanitizeNames rewrites each produced operation's exposed name, replacing
// path separators with underscores so names are safe for regeneration into
// downstream representations. The table keeps the original external name
// as key, so later references still resolve. This is the only place an
// operation is mutated after construction.
func sanitizeNames(output graph.Output) graph.Output {
	if output.IsMissing() {
		return output
	}
	nodes := output.Nodes()
	for _, node := range nodes {
		if name := strings.ReplaceAll(node.Name(), "/", "_"); name != node.Name() {
			node.SetName(name)
		}
	}
	return output.Repack(nodes)
}

// Lookup returns the raw table entry for an external node name, and
// whether the name was imported at all. Missing entries are returned as
// such; most callers want LookupByName instead.
func (imp *Importer) Lookup(name string) (graph.Output, bool) {
	entry, found := imp.nameTable[name]
	return entry, found
}

// LookupByName resolves a reference string ("base", "base:k" or "^base")
// to the operation it denotes.
func (imp *Importer) LookupByName(reference string) (*graph.Node, error) {
	ref, err := ParseReference(reference)
	if err != nil {
		return nil, err
	}
	entry, found := imp.nameTable[ref.Base]
	if !found {
		return nil, errors.Errorf("importer: no node named %q was imported", ref.Base)
	}
	if entry.IsMissing() {
		return nil, errors.Errorf("importer: node %q was skipped during import", ref.Base)
	}
	return selectOutput(entry, ref)
}

// LookupByNode resolves an external node to its imported operation.
func (imp *Importer) LookupByNode(node *graphdef.NodeDef) (*graph.Node, error) {
	return imp.LookupByName(node.Name)
}

// LookupByNodes resolves a slice of external nodes at once.
func (imp *Importer) LookupByNodes(nodes []*graphdef.NodeDef) ([]*graph.Node, error) {
	resolved := make([]*graph.Node, len(nodes))
	for ii, node := range nodes {
		op, err := imp.LookupByNode(node)
		if err != nil {
			return nil, err
		}
		resolved[ii] = op
	}
	return resolved, nil
}

// ListUnsupportedOps returns the sorted, distinct operation type tags
// present in graphDef but not handled by the ops bridge. It works by set
// difference against the bridge's declared capability set, without running
// the import.
func ListUnsupportedOps(graphDef *graphdef.GraphDef) []string {
	required := types.MakeSet[string]()
	for _, node := range graphDef.Node {
		required.Insert(node.Op)
	}
	supported := types.SetWith(NewBridge(nil, nil).SupportedOps()...)
	unsupported := required.Sub(supported)
	list := make([]string, 0, len(unsupported))
	for op := range unsupported {
		list = append(list, op)
	}
	sort.Strings(list)
	return list
}
