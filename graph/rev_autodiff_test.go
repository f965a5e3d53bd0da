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

// Structural tests of the reverse-mode autodiff: gradients must carry the
// axes of the selected nodes. Numeric correctness is cross-checked against
// finite differences in the transform package tests.

import (
	"testing"

	"github.com/gomlx/tfgraph/types/axes"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/stretchr/testify/require"
)

func TestGradientShapes(t *testing.T) {
	g := New("autodiff")
	w := Placeholder(g, "w", axes.FromDimensions(10, 5), shapes.Float64)
	x := Placeholder(g, "x", axes.FromDimensions(5, 3), shapes.Float64)
	out := Tanh(MatMul(w, x))

	grads := Gradient(out, w, x)
	require.Len(t, grads, 2)
	require.Equal(t, []int{10, 5}, grads[0].Axes().Lengths())
	require.Equal(t, []int{5, 3}, grads[1].Axes().Lengths())
}

func TestGradientOfReduction(t *testing.T) {
	g := New("autodiff")
	x := Placeholder(g, "x", axes.FromDimensions(2, 3), shapes.Float64)
	loss := ReduceSum(Square(x), ReduceAllAxes)
	grads := Gradient(loss, x)
	require.Equal(t, []int{2, 3}, grads[0].Axes().Lengths())

	perAxis := ReduceMean(x, 1)
	grads = Gradient(perAxis, x)
	require.Equal(t, []int{2, 3}, grads[0].Axes().Lengths())
}

func TestGradientUnreachableSelection(t *testing.T) {
	g := New("autodiff")
	x := Placeholder(g, "x", axes.FromDimensions(2), shapes.Float64)
	unused := Placeholder(g, "unused", axes.FromDimensions(4), shapes.Float64)
	out := Exp(x)

	grads := Gradient(out, unused)
	require.Equal(t, NodeTypeFill, grads[0].Type())
	require.Equal(t, 0.0, grads[0].FillValue())
	require.Equal(t, []int{4}, grads[0].Axes().Lengths())
}

func TestGradientThroughBroadcastScalar(t *testing.T) {
	g := New("autodiff")
	x := Placeholder(g, "x", axes.FromDimensions(3), shapes.Float64)
	scale := Placeholder(g, "scale", nil, shapes.Float64)
	out := Mul(x, scale)

	grads := Gradient(out, x, scale)
	require.Equal(t, []int{3}, grads[0].Axes().Lengths())
	require.Equal(t, 0, grads[1].Rank())
}
