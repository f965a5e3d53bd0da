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

package shapes

import (
	"github.com/x448/float16"
)

// DType indicates the type of the unit element of a tensor, either a concrete
// one or the declared element type of a node in a computation graph.
//
// The enumeration values match the data-type tags used by the TensorFlow
// GraphDef interchange format (`tensorflow/core/framework/types.proto`), so
// imported attribute values can be used directly.
type DType int32

const (
	InvalidDType DType = iota
	Float32
	Float64
	Int32
	UInt8
	Int16
	Int8
	_ // DT_STRING, not supported.
	_ // DT_COMPLEX64, not supported.
	Int64
	Bool
	_ // DT_QINT8
	_ // DT_QUINT8
	_ // DT_QINT32
	_ // DT_BFLOAT16
	_ // DT_QINT16
	_ // DT_QUINT16
	_ // DT_UINT16
	_ // DT_COMPLEX128
	Float16
)

const (
	F16 = Float16
	F32 = Float32
	F64 = Float64
	I32 = Int32
	I64 = Int64
)

// String implements fmt.Stringer.
func (dtype DType) String() string {
	switch dtype {
	case Float16:
		return "Float16"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	case Int8:
		return "Int8"
	case Int16:
		return "Int16"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case UInt8:
		return "UInt8"
	case Bool:
		return "Bool"
	}
	return "InvalidDType"
}

// IsFloat returns whether dtype is a supported float type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is a supported integer type.
func (dtype DType) IsInt() bool {
	switch dtype {
	case Int8, Int16, Int32, Int64, UInt8:
		return true
	}
	return false
}

// IsSupported returns whether the dtype can back a materialized tensor.
func (dtype DType) IsSupported() bool {
	return dtype.IsFloat() || dtype.IsInt() || dtype == Bool
}

// Size returns the number of bytes of one element of the given dtype.
func (dtype DType) Size() int {
	switch dtype {
	case Bool, Int8, UInt8:
		return 1
	case Int16, Float16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	return 0
}

// Float16ToFloat32 converts an IEEE 754 half-precision value, given in its
// raw 16 bits representation, to a float32. Used when decoding Float16
// tensor literals from imported graphs.
func Float16ToFloat32(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

// Float32ToFloat16 converts a float32 to the raw 16 bits representation of
// the nearest IEEE 754 half-precision value.
func Float32ToFloat16(value float32) uint16 {
	return float16.Fromfloat32(value).Bits()
}
