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

// Package tensors implements the host-side concrete tensors produced by the
// transformer when it materializes an operation.
//
// A Description is the backend-facing lowering of an operation's symbolic
// axes: concrete shape, element byte strides and byte offset into a backing
// buffer. A Tensor pairs a Description with its flat float64 working storage
// (the numeric backends compute in float64, whatever the logical DType of
// the operation).
package tensors

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/pkg/errors"
)

// Description describes the physical layout of one operation's materialized
// value: concrete shape, byte strides per axis and byte offset into the
// backing buffer. It is created by the transformer when it first allocates
// storage for an operation.
type Description struct {
	Shape   shapes.Shape
	Strides []int // In bytes, row-major when created by NewDescription.
	Offset  int   // In bytes, into the backing buffer.
}

// NewDescription returns the dense, zero-offset Description for the given
// shape.
func NewDescription(shape shapes.Shape) Description {
	return Description{
		Shape:   shape,
		Strides: shape.ByteStrides(),
	}
}

// DType of the described elements.
func (d Description) DType() shapes.DType {
	return d.Shape.DType
}

// Rank of the described tensor.
func (d Description) Rank() int {
	return d.Shape.Rank()
}

// Size returns the number of elements described.
func (d Description) Size() int {
	return d.Shape.Size()
}

// Memory returns the number of bytes of the described storage.
func (d Description) Memory() uintptr {
	return d.Shape.Memory()
}

// String implements fmt.Stringer.
func (d Description) String() string {
	return fmt.Sprintf("%s strides=%v offset=%d", d.Shape, d.Strides, d.Offset)
}

// Tensor is a concrete host tensor: a Description plus flat float64 storage
// in row-major order. Kernels write into a Tensor in place, so the flat
// storage of one Tensor may be overwritten by subsequent executions of the
// executor that allocated it -- use Clone to keep a copy.
type Tensor struct {
	desc Description
	flat []float64
}

// New allocates a zero-initialized dense tensor of the given shape.
func New(shape shapes.Shape) *Tensor {
	return &Tensor{
		desc: NewDescription(shape),
		flat: make([]float64, shape.Size()),
	}
}

// NewFromDescription allocates a zero-initialized tensor for the given
// description. Only dense descriptions are supported by the host storage.
func NewFromDescription(desc Description) *Tensor {
	return &Tensor{
		desc: desc,
		flat: make([]float64, desc.Size()),
	}
}

// FromFlat wraps the given flat data (not copied) into a tensor of the
// given shape. It panics if the sizes don't match.
func FromFlat(shape shapes.Shape, flat []float64) *Tensor {
	if len(flat) != shape.Size() {
		exceptions.Panicf("tensors.FromFlat: shape %s needs %d elements, got %d", shape, shape.Size(), len(flat))
	}
	return &Tensor{desc: NewDescription(shape), flat: flat}
}

// FromValue creates a scalar Float64 tensor.
func FromValue(value float64) *Tensor {
	t := New(shapes.Scalar(shapes.Float64))
	t.flat[0] = value
	return t
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape {
	return t.desc.Shape
}

// Description of the tensor's layout.
func (t *Tensor) Description() Description {
	return t.desc
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return len(t.flat)
}

// Flat returns the underlying flat storage, aliased, in row-major order.
func (t *Tensor) Flat() []float64 {
	return t.flat
}

// flatIndex converts the multidimensional indices to a position in the flat
// storage. It panics on rank or bounds violations.
func (t *Tensor) flatIndex(indices ...int) int {
	if len(indices) != t.desc.Rank() {
		exceptions.Panicf("tensor %s indexed with %d indices", t.desc.Shape, len(indices))
	}
	pos := 0
	strides := t.desc.Shape.Strides()
	for axis, index := range indices {
		if index < 0 || index >= t.desc.Shape.Dimensions[axis] {
			exceptions.Panicf("tensor %s index %d out of range for axis %d", t.desc.Shape, index, axis)
		}
		pos += index * strides[axis]
	}
	return pos
}

// At returns the element at the given indices. A scalar takes no indices.
func (t *Tensor) At(indices ...int) float64 {
	return t.flat[t.flatIndex(indices...)]
}

// Set writes the element at the given indices.
func (t *Tensor) Set(value float64, indices ...int) {
	t.flat[t.flatIndex(indices...)] = value
}

// Fill sets every element to the given value.
func (t *Tensor) Fill(value float64) {
	for ii := range t.flat {
		t.flat[ii] = value
	}
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	flat := make([]float64, len(t.flat))
	copy(flat, t.flat)
	return &Tensor{desc: t.desc, flat: flat}
}

// CopyFrom overwrites the tensor contents with other's. The shapes'
// dimensions must match.
func (t *Tensor) CopyFrom(other *Tensor) error {
	if !t.Shape().EqualDimensions(other.Shape()) {
		return errors.Errorf("tensors.CopyFrom: incompatible shapes %s and %s", t.Shape(), other.Shape())
	}
	copy(t.flat, other.flat)
	return nil
}

// InDelta reports whether every element of t is within delta of the
// corresponding element of other. Shapes must have the same dimensions.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if !t.Shape().EqualDimensions(other.Shape()) {
		return false
	}
	for ii, v := range t.flat {
		diff := v - other.flat[ii]
		if diff < -delta || diff > delta {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. Large tensors are summarized.
func (t *Tensor) String() string {
	const maxElements = 8
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: [", t.desc.Shape)
	for ii, v := range t.flat {
		if ii > 0 {
			sb.WriteString(" ")
		}
		if ii == maxElements {
			fmt.Fprintf(&sb, "... (%d elements)", len(t.flat))
			break
		}
		fmt.Fprintf(&sb, "%g", v)
	}
	sb.WriteString("]")
	return sb.String()
}
