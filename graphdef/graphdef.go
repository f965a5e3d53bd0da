// Package graphdef models the external interchange graph: a flat, ordered
// list of named nodes with typed operations, textual input references and an
// attribute bag.
//
// It mirrors the subset of the TensorFlow GraphDef node list that the
// importer package consumes. Decoding from a serialized stream is a
// collaborator of the importer, not part of the import itself: the importer
// only ever sees an already-decoded *GraphDef.
package graphdef

import (
	"encoding/gob"
	"encoding/json"
	"io"
	"path"
	"strings"

	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/pkg/errors"
)

// NodeDef is one entry of the interchange graph.
//
// Input references other nodes by name. A reference may be suffixed ":k" to
// select the k-th output of a multi-output producer, or prefixed "^" for a
// control-only dependency. The importer's name resolver owns that grammar.
type NodeDef struct {
	Name  string                `json:"name"`
	Op    string                `json:"op"`
	Input []string              `json:"input,omitempty"`
	Attr  map[string]*AttrValue `json:"attr,omitempty"`
}

// GetAttr returns the named attribute or nil.
func (n *NodeDef) GetAttr(name string) *AttrValue {
	if n.Attr == nil {
		return nil
	}
	return n.Attr[name]
}

// AttrValue is one attribute of a NodeDef. Only the field matching the
// attribute's kind is set; the rest stay at their zero value. The core is
// opaque to attributes beyond what the ops bridge consumes.
type AttrValue struct {
	S      string       `json:"s,omitempty"`
	I      int64        `json:"i,omitempty"`
	F      float64      `json:"f,omitempty"`
	B      bool         `json:"b,omitempty"`
	Type   shapes.DType `json:"type,omitempty"`
	Shape  []int        `json:"shape,omitempty"`
	Tensor *TensorValue `json:"tensor,omitempty"`
	Ints   []int64      `json:"ints,omitempty"`
	Floats []float64    `json:"floats,omitempty"`
}

// TensorValue is a tensor literal carried by a "value" attribute of a Const
// node. Exactly one of Floats, Ints or Halves is set, matching DType.
// Halves carries raw IEEE 754 half-precision bits for Float16 literals.
type TensorValue struct {
	DType  shapes.DType `json:"dtype"`
	Shape  []int        `json:"shape,omitempty"`
	Floats []float64    `json:"floats,omitempty"`
	Ints   []int64      `json:"ints,omitempty"`
	Halves []uint16     `json:"halves,omitempty"`
}

// GraphDef is the ordered external node list. The format guarantees nodes
// are declared before they are referenced.
type GraphDef struct {
	Node []*NodeDef `json:"node"`
}

// ContentHint tells Decode which encoding the stream carries. The hint is
// supplied by the caller, typically from GuessContent on the source name.
type ContentHint int

const (
	// ContentText is the human-readable (JSON) encoding.
	ContentText ContentHint = iota

	// ContentBinary is the binary (gob) encoding.
	ContentBinary
)

// GuessContent guesses the encoding of a graph file from its name, the same
// way the importer's producers decide it: text for ".json" and ".pbtxt",
// binary otherwise.
func GuessContent(name string) ContentHint {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".pbtxt", ".txt":
		return ContentText
	}
	return ContentBinary
}

// Decode reads a GraphDef from the stream using the encoding selected by
// hint. Both encodings are equivalent after decoding.
func Decode(r io.Reader, hint ContentHint) (*GraphDef, error) {
	graphDef := &GraphDef{}
	switch hint {
	case ContentText:
		if err := json.NewDecoder(r).Decode(graphDef); err != nil {
			return nil, errors.Wrap(err, "graphdef.Decode: text encoding")
		}
	case ContentBinary:
		if err := gob.NewDecoder(r).Decode(graphDef); err != nil {
			return nil, errors.Wrap(err, "graphdef.Decode: binary encoding")
		}
	default:
		return nil, errors.Errorf("graphdef.Decode: unknown content hint %d", hint)
	}
	return graphDef, nil
}

// Encode writes the GraphDef to the stream using the encoding selected by
// hint.
func Encode(w io.Writer, graphDef *GraphDef, hint ContentHint) error {
	switch hint {
	case ContentText:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return errors.Wrap(encoder.Encode(graphDef), "graphdef.Encode: text encoding")
	case ContentBinary:
		return errors.Wrap(gob.NewEncoder(w).Encode(graphDef), "graphdef.Encode: binary encoding")
	}
	return errors.Errorf("graphdef.Encode: unknown content hint %d", hint)
}
