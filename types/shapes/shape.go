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

// Package shapes defines Shape and DType and associated tools.
//
// Shape represents the shape (rank, dimensions and DType) of either a concrete
// tensor or the declared output of a node in a computation graph. DType
// indicates the type of the unit element of a tensor.
//
// Symbolic named axes are defined in the axes package, and are lowered to a
// Shape when a graph node is materialized by a transformer.
//
// Go float16 support uses the github.com/x448/float16 implementation.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension on a multidimensional tensor.
//   - Dimension: the size of a tensor in one of its axes.
//   - DType: the data type of the unit element in a tensor.
//   - Scalar: a shape with no axes, holding a single value of the DType.
package shapes

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
)

// Shape represents the shape of either a concrete tensor or the declared
// output of a computation graph node.
//
// Use Make to create one, and the various methods to query it. Shape is
// a value type: it can be copied freely, but Dimensions is shared among
// copies and shouldn't be mutated after creation.
type Shape struct {
	DType      DType
	Dimensions []int
}

// Make returns a Shape with the given dtype and dimensions. A shape with
// no dimensions is a scalar. It panics (with a stack trace) on invalid
// dimensions, since those indicate a bug in axes inference upstream.
func Make(dtype DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: dimensions}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s, %v): dimensions must be positive", dtype, dimensions)
		}
	}
	return s
}

// Scalar returns the scalar shape of the given dtype.
func Scalar(dtype DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns an invalid (zero) Shape.
func Invalid() Shape {
	return Shape{DType: InvalidDType}
}

// Ok returns whether this is a valid Shape.
func (s Shape) Ok() bool {
	return s.DType != InvalidDType
}

// Rank of the shape, the number of axes. A scalar has rank 0.
func (s Shape) Rank() int {
	return len(s.Dimensions)
}

// IsScalar returns whether the shape has rank 0.
func (s Shape) IsScalar() bool {
	return s.Ok() && s.Rank() == 0
}

// Size returns the total number of elements of a tensor of this shape.
// A scalar has size 1.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// Memory returns the number of bytes needed to store a tensor of this
// shape, densely packed.
func (s Shape) Memory() uintptr {
	return uintptr(s.DType.Size()) * uintptr(s.Size())
}

// Strides returns the row-major ("C" order) strides for this shape, in
// number of elements per axis.
func (s Shape) Strides() []int {
	strides := make([]int, s.Rank())
	stride := 1
	for axis := s.Rank() - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= s.Dimensions[axis]
	}
	return strides
}

// ByteStrides returns the row-major strides for this shape, in bytes per
// axis, as used by a tensors.Description.
func (s Shape) ByteStrides() []int {
	strides := s.Strides()
	for axis, stride := range strides {
		strides[axis] = stride * s.DType.Size()
	}
	return strides
}

// Clone makes a deep copy of the shape.
func (s Shape) Clone() Shape {
	s2 := Shape{DType: s.DType, Dimensions: make([]int, s.Rank())}
	copy(s2.Dimensions, s.Dimensions)
	return s2
}

// Equal compares shape's dtype and dimensions.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType || s.Rank() != s2.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		if s2.Dimensions[axis] != dim {
			return false
		}
	}
	return true
}

// EqualDimensions compares only the dimensions, ignoring the dtype.
func (s Shape) EqualDimensions(s2 Shape) bool {
	if s.Rank() != s2.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		if s2.Dimensions[axis] != dim {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	if !s.Ok() {
		return "(invalid shape)"
	}
	if s.IsScalar() {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, 0, s.Rank())
	for _, dim := range s.Dimensions {
		parts = append(parts, fmt.Sprintf("%d", dim))
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}
