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

// Package axes defines symbolic named axes, the logical dimensions attached
// to every operation of a computation graph.
//
// An Axis pairs a name with a length and an optional role (batch or
// recurrent/sequence). An ordered set of axes (Axes) describes the logical
// shape of an operation's output; it is lowered to a concrete shapes.Shape
// only when a transformer materializes the operation.
package axes

import (
	"fmt"
	"strings"

	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/gomlx/tfgraph/types/xslices"
)

// Role tags the special function of an axis, if any.
type Role int

const (
	// RoleNone is an ordinary feature axis.
	RoleNone Role = iota

	// RoleBatch marks the batch axis of an operation.
	RoleBatch

	// RoleRecurrent marks the sequence (time step) axis of a recurrent
	// computation.
	RoleRecurrent
)

// Axis is one named, sized logical dimension. Axes compare by value: two
// axes with the same name, length and role are the same axis.
type Axis struct {
	Name   string
	Length int
	Role   Role
}

// New creates an ordinary axis.
func New(name string, length int) Axis {
	return Axis{Name: name, Length: length}
}

// Batch creates an axis with the batch role.
func Batch(name string, length int) Axis {
	return Axis{Name: name, Length: length, Role: RoleBatch}
}

// Recurrent creates an axis with the recurrent (sequence) role.
func Recurrent(name string, length int) Axis {
	return Axis{Name: name, Length: length, Role: RoleRecurrent}
}

// String implements fmt.Stringer.
func (a Axis) String() string {
	switch a.Role {
	case RoleBatch:
		return fmt.Sprintf("%s[%d,batch]", a.Name, a.Length)
	case RoleRecurrent:
		return fmt.Sprintf("%s[%d,rec]", a.Name, a.Length)
	}
	return fmt.Sprintf("%s[%d]", a.Name, a.Length)
}

// Axes is an ordered set of named axes: the symbolic shape of an operation.
type Axes []Axis

// Of builds an Axes from the given axes in order.
func Of(list ...Axis) Axes {
	return Axes(list)
}

// FromDimensions builds anonymous axes (named "d0", "d1", ...) for
// dimensions coming from an imported graph, which carries no axis names.
func FromDimensions(dimensions ...int) Axes {
	result := make(Axes, len(dimensions))
	for ii, dim := range dimensions {
		result[ii] = New(fmt.Sprintf("d%d", ii), dim)
	}
	return result
}

// Rank returns the number of axes.
func (axes Axes) Rank() int {
	return len(axes)
}

// Lengths returns the ordered axis lengths.
func (axes Axes) Lengths() []int {
	return xslices.Map(axes, func(a Axis) int { return a.Length })
}

// Size returns the product of the axis lengths, so the number of elements
// of a tensor with these axes. Empty axes have size 1 (a scalar).
func (axes Axes) Size() int {
	size := 1
	for _, a := range axes {
		size *= a.Length
	}
	return size
}

// Index returns the position of the first axis with the given name, or -1.
func (axes Axes) Index(name string) int {
	for ii, a := range axes {
		if a.Name == name {
			return ii
		}
	}
	return -1
}

// BatchAxis returns the position of the first axis with the batch role,
// or -1 if there is none.
func (axes Axes) BatchAxis() int {
	return axes.indexOfRole(RoleBatch)
}

// RecurrentAxis returns the position of the first axis with the recurrent
// role, or -1 if there is none.
func (axes Axes) RecurrentAxis() int {
	return axes.indexOfRole(RoleRecurrent)
}

func (axes Axes) indexOfRole(role Role) int {
	for ii, a := range axes {
		if a.Role == role {
			return ii
		}
	}
	return -1
}

// Shape lowers the symbolic axes to a concrete shape of the given dtype.
func (axes Axes) Shape(dtype shapes.DType) shapes.Shape {
	return shapes.Make(dtype, axes.Lengths()...)
}

// Equal compares the axes element-wise.
func (axes Axes) Equal(other Axes) bool {
	if len(axes) != len(other) {
		return false
	}
	for ii, a := range axes {
		if other[ii] != a {
			return false
		}
	}
	return true
}

// Clone makes a copy of the axes that can be mutated independently.
func (axes Axes) Clone() Axes {
	result := make(Axes, len(axes))
	copy(result, axes)
	return result
}

// String implements fmt.Stringer.
func (axes Axes) String() string {
	parts := xslices.Map(axes, func(a Axis) string { return a.String() })
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}
