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
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Scalar(Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := Make(Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 4*4*3*2, int(shape1.Memory()))
	require.Equal(t, "(Float32)[4 3 2]", shape1.String())

	require.True(t, shape1.Equal(Make(Float32, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(Float64, 4, 3, 2)))
	require.True(t, shape1.EqualDimensions(Make(Float64, 4, 3, 2)))
	require.False(t, shape1.Equal(Make(Float32, 4, 3)))

	clone := shape1.Clone()
	clone.Dimensions[0] = 7
	require.Equal(t, 4, shape1.Dimensions[0])

	err := exceptions.TryCatch[error](func() { _ = Make(Float32, 3, 0) })
	require.Error(t, err)
}

func TestStrides(t *testing.T) {
	shape := Make(Float64, 2, 3, 4)
	require.Equal(t, []int{12, 4, 1}, shape.Strides())
	require.Equal(t, []int{96, 32, 8}, shape.ByteStrides())

	scalar := Scalar(Float32)
	require.Empty(t, scalar.Strides())
}

func TestDType(t *testing.T) {
	assert.True(t, Float32.IsFloat())
	assert.True(t, Float16.IsFloat())
	assert.False(t, Int32.IsFloat())
	assert.True(t, Int64.IsInt())
	assert.False(t, Bool.IsInt())
	assert.True(t, Bool.IsSupported())
	assert.False(t, InvalidDType.IsSupported())

	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Int64.Size())
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 0, InvalidDType.Size())

	// Matches tensorflow/core/framework/types.proto.
	assert.Equal(t, DType(1), Float32)
	assert.Equal(t, DType(2), Float64)
	assert.Equal(t, DType(3), Int32)
	assert.Equal(t, DType(9), Int64)
	assert.Equal(t, DType(10), Bool)
	assert.Equal(t, DType(19), Float16)
}

func TestFloat16RoundTrip(t *testing.T) {
	for _, value := range []float32{0, 1, -1, 0.5, 1024, -3.25} {
		bits := Float32ToFloat16(value)
		require.Equal(t, value, Float16ToFloat32(bits))
	}
}
