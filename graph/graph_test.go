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
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/types/axes"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeBasics(t *testing.T) {
	g := New("test")
	x := Placeholder(g, "x", axes.FromDimensions(2, 3), shapes.Float64)
	require.Equal(t, NodeId(0), x.Id())
	require.Equal(t, NodeTypePlaceholder, x.Type())
	require.Equal(t, "x", x.Name())
	require.Equal(t, 2, x.Rank())
	require.True(t, x.Shape().Equal(shapes.Make(shapes.Float64, 2, 3)))
	require.Same(t, g, x.Graph())

	y := Tanh(x)
	require.Equal(t, NodeId(1), y.Id())
	require.Equal(t, 1, y.NumInputs())
	require.Same(t, x, y.Inputs()[0])
	require.True(t, y.Axes().Equal(x.Axes()))
	require.Equal(t, "tanh_1", y.Name())

	y.SetName("renamed")
	require.Equal(t, "renamed", y.Name())

	require.Equal(t, 2, g.NumNodes())
	require.Same(t, y, g.NodeById(1))
}

func TestMixedGraphsPanic(t *testing.T) {
	g1 := New("g1")
	g2 := New("g2")
	x := Placeholder(g1, "x", nil, shapes.Float64)
	y := Placeholder(g2, "y", nil, shapes.Float64)
	err := exceptions.TryCatch[error](func() { Add(x, y) })
	require.Error(t, err)
}

func TestBinaryAxesInference(t *testing.T) {
	g := New("test")
	x := Placeholder(g, "x", axes.FromDimensions(2, 3), shapes.Float64)
	y := Placeholder(g, "y", axes.FromDimensions(2, 3), shapes.Float64)
	scalar := Scalar(g, shapes.Float64, 2)

	sum := Add(x, y)
	require.Equal(t, []int{2, 3}, sum.Axes().Lengths())

	scaled := Mul(x, scalar)
	require.Equal(t, []int{2, 3}, scaled.Axes().Lengths())
	scaled2 := Mul(scalar, x)
	require.Equal(t, []int{2, 3}, scaled2.Axes().Lengths())

	bad := Placeholder(g, "bad", axes.FromDimensions(3, 2), shapes.Float64)
	err := exceptions.TryCatch[error](func() { Add(x, bad) })
	require.Error(t, err)
}

func TestComparisonDType(t *testing.T) {
	g := New("test")
	x := Placeholder(g, "x", axes.FromDimensions(4), shapes.Float64)
	y := Placeholder(g, "y", axes.FromDimensions(4), shapes.Float64)
	mask := Greater(x, y)
	require.Equal(t, shapes.Bool, mask.DType())
	require.Equal(t, []int{4}, mask.Axes().Lengths())
}

func TestReductionAxes(t *testing.T) {
	g := New("test")
	x := Placeholder(g, "x", axes.FromDimensions(2, 3, 4), shapes.Float64)

	all := ReduceSum(x, ReduceAllAxes)
	require.Equal(t, 0, all.Rank())

	mid := ReduceMean(x, 1)
	require.Equal(t, []int{2, 4}, mid.Axes().Lengths())
	require.Equal(t, 1, mid.ReduceAxis())

	err := exceptions.TryCatch[error](func() { ReduceSum(x, 3) })
	require.Error(t, err)
}

func TestArgMaxAxes(t *testing.T) {
	g := New("test")
	x := Placeholder(g, "x", axes.FromDimensions(2, 3, 4), shapes.Float64)

	idx := ArgMax(x)
	require.Equal(t, NodeTypeArgMax, idx.Type())
	require.Equal(t, []int{3, 4}, idx.Axes().Lengths())
	require.Equal(t, shapes.Int64, idx.DType())

	column := ArgMin(Placeholder(g, "column", axes.FromDimensions(5), shapes.Float64))
	require.Equal(t, 0, column.Rank())

	scalar := Scalar(g, shapes.Float64, 1)
	err := exceptions.TryCatch[error](func() { ArgMax(scalar) })
	require.Error(t, err)
}

func TestBroadcast(t *testing.T) {
	g := New("test")
	x := Placeholder(g, "x", axes.FromDimensions(2, 4), shapes.Float64)
	b := Broadcast(x, axes.New("seq", 3), 1)
	require.Equal(t, []int{2, 3, 4}, b.Axes().Lengths())
	axis, length := b.BroadcastAxisAndLength()
	require.Equal(t, 1, axis)
	require.Equal(t, 3, length)
}

func TestDotAxes(t *testing.T) {
	g := New("test")
	hidden := axes.New("hidden", 10)
	input := axes.New("input", 5)
	seq := axes.Recurrent("seq", 3)

	w := Placeholder(g, "w", axes.Of(hidden, input), shapes.Float64)
	x := Placeholder(g, "x", axes.Of(input, seq), shapes.Float64)

	out := MatMul(w, x)
	require.Equal(t, []int{10, 3}, out.Axes().Lengths())
	require.Equal(t, "hidden", out.Axes()[0].Name)
	require.Equal(t, "seq", out.Axes()[1].Name)

	outT := Dot(x, w, true, true)
	require.Equal(t, []int{3, 10}, outT.Axes().Lengths())

	err := exceptions.TryCatch[error](func() { MatMul(x, w) })
	require.Error(t, err)
}

func TestConstantAndFill(t *testing.T) {
	g := New("test")
	c := Constant(g, tensors.FromFlat(shapes.Make(shapes.Float64, 2), []float64{1, 2}))
	require.Equal(t, NodeTypeConstant, c.Type())
	require.Equal(t, 2.0, c.ConstValue().At(1))

	f := Fill(g, axes.FromDimensions(3), shapes.Float64, 0.5)
	require.Equal(t, 0.5, f.FillValue())

	ones := OnesLike(c)
	require.Equal(t, 1.0, ones.FillValue())
	require.True(t, ones.Axes().Equal(c.Axes()))
}

func TestAssignChecksTarget(t *testing.T) {
	g := New("test")
	v := Variable(g, "v", axes.FromDimensions(2), shapes.Float64)
	value := Placeholder(g, "value", axes.FromDimensions(2), shapes.Float64)
	assign := Assign(v, value)
	require.Equal(t, NodeTypeAssign, assign.Type())

	err := exceptions.TryCatch[error](func() { Assign(value, value) })
	require.Error(t, err)

	bad := Placeholder(g, "bad", axes.FromDimensions(3), shapes.Float64)
	err = exceptions.TryCatch[error](func() { Assign(v, bad) })
	require.Error(t, err)
}

func TestNoOpHasNoValue(t *testing.T) {
	g := New("test")
	v := Variable(g, "v", axes.FromDimensions(2), shapes.Float64)
	init := NoOp(g, v)
	require.False(t, init.HasValue())
	err := exceptions.TryCatch[error](func() { init.Shape() })
	require.Error(t, err)
	err = exceptions.TryCatch[error](func() { Tanh(init) })
	require.Error(t, err)
}

func TestUniformNodeIsAllocation(t *testing.T) {
	g := New("test")
	u := Uniform(g, nil, axes.FromDimensions(2, 2), shapes.Float64, -1, 1)
	require.True(t, u.IsAllocation())
	p := Placeholder(g, "p", nil, shapes.Float64)
	require.False(t, p.IsAllocation())

	err := exceptions.TryCatch[error](func() { Uniform(g, nil, nil, shapes.Float64, 1, 1) })
	require.Error(t, err)
}

func TestOutputVariant(t *testing.T) {
	g := New("test")
	a := Placeholder(g, "a", nil, shapes.Float64)
	b := Placeholder(g, "b", nil, shapes.Float64)

	missing := Missing()
	require.True(t, missing.IsMissing())
	require.Equal(t, 0, missing.Len())
	require.Error(t, exceptions.TryCatch[error](func() { missing.Node() }))
	require.Error(t, exceptions.TryCatch[error](func() { missing.At(0) }))

	single := Single(a)
	require.False(t, single.IsMissing())
	require.False(t, single.IsTuple())
	require.Same(t, a, single.Node())
	require.Same(t, a, single.At(0))
	require.Error(t, exceptions.TryCatch[error](func() { single.At(1) }))

	tuple := Tuple(a, b)
	require.True(t, tuple.IsTuple())
	require.Equal(t, 2, tuple.Len())
	require.Same(t, b, tuple.At(1))
	require.Error(t, exceptions.TryCatch[error](func() { tuple.Node() }))

	repacked := tuple.Repack([]*Node{b, a})
	require.True(t, repacked.IsTuple())
	require.Same(t, b, repacked.At(0))

	repackedSingle := single.Repack([]*Node{b})
	require.False(t, repackedSingle.IsTuple())
	require.Same(t, b, repackedSingle.Node())

	assert.Equal(t, "Missing", missing.String())
}
