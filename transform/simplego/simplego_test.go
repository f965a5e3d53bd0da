package simplego

import (
	"testing"

	"github.com/gomlx/tfgraph/graph"
	"github.com/gomlx/tfgraph/transform"
	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tensorOf(t *testing.T, dims []int, flat ...float64) *tensors.Tensor {
	t.Helper()
	shape := shapes.Make(shapes.Float64, dims...)
	require.Equal(t, shape.Size(), len(flat))
	return tensors.FromFlat(shape, flat)
}

func TestUnaryKernels(t *testing.T) {
	b := New()
	x := tensorOf(t, []int{3}, -2, 0, 4)
	out := tensors.New(x.Shape())

	require.NoError(t, b.Neg(x, out))
	assert.Equal(t, []float64{2, 0, -4}, out.Flat())

	require.NoError(t, b.Abs(x, out))
	assert.Equal(t, []float64{2, 0, 4}, out.Flat())

	require.NoError(t, b.Sign(x, out))
	assert.Equal(t, []float64{-1, 0, 1}, out.Flat())

	require.NoError(t, b.Square(x, out))
	assert.Equal(t, []float64{4, 0, 16}, out.Flat())
}

func TestBinaryScalarBroadcast(t *testing.T) {
	b := New()
	x := tensorOf(t, []int{2, 2}, 1, 2, 3, 4)
	ten := tensors.FromValue(10)
	out := tensors.New(x.Shape())

	require.NoError(t, b.Mul(x, ten, out))
	assert.Equal(t, []float64{10, 20, 30, 40}, out.Flat())

	require.NoError(t, b.Sub(ten, x, out))
	assert.Equal(t, []float64{9, 8, 7, 6}, out.Flat())

	bad := tensorOf(t, []int{3}, 1, 2, 3)
	err := b.Add(x, bad, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrShapeMismatch)
}

func TestComparisonsWriteMasks(t *testing.T) {
	b := New()
	x := tensorOf(t, []int{3}, 1, 2, 3)
	y := tensorOf(t, []int{3}, 2, 2, 2)
	out := tensors.New(x.Shape())

	require.NoError(t, b.Greater(x, y, out))
	assert.Equal(t, []float64{0, 0, 1}, out.Flat())

	require.NoError(t, b.LessOrEqual(x, y, out))
	assert.Equal(t, []float64{1, 1, 0}, out.Flat())

	require.NoError(t, b.Equal(x, y, out))
	assert.Equal(t, []float64{0, 1, 0}, out.Flat())
}

func TestReductions(t *testing.T) {
	b := New()
	// x = [[1 2 3] [4 5 6]]
	x := tensorOf(t, []int{2, 3}, 1, 2, 3, 4, 5, 6)

	scalar := tensors.New(shapes.Scalar(shapes.Float64))
	require.NoError(t, b.Sum(x, graph.ReduceAllAxes, scalar))
	assert.Equal(t, 21.0, scalar.Flat()[0])
	require.NoError(t, b.Mean(x, graph.ReduceAllAxes, scalar))
	assert.Equal(t, 3.5, scalar.Flat()[0])
	require.NoError(t, b.Max(x, graph.ReduceAllAxes, scalar))
	assert.Equal(t, 6.0, scalar.Flat()[0])
	require.NoError(t, b.Min(x, graph.ReduceAllAxes, scalar))
	assert.Equal(t, 1.0, scalar.Flat()[0])

	rows := tensors.New(shapes.Make(shapes.Float64, 3))
	require.NoError(t, b.Sum(x, 0, rows))
	assert.Equal(t, []float64{5, 7, 9}, rows.Flat())

	cols := tensors.New(shapes.Make(shapes.Float64, 2))
	require.NoError(t, b.Sum(x, 1, cols))
	assert.Equal(t, []float64{6, 15}, cols.Flat())
	require.NoError(t, b.Mean(x, 1, cols))
	assert.Equal(t, []float64{2, 5}, cols.Flat())
	require.NoError(t, b.Max(x, 1, cols))
	assert.Equal(t, []float64{3, 6}, cols.Flat())

	err := b.Sum(x, 2, cols)
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrShapeMismatch)
}

func TestArgMaxArgMin(t *testing.T) {
	b := New()
	// x = [[1 5 3] [4 2 6]]: column-wise extremes along the leading axis.
	x := tensorOf(t, []int{2, 3}, 1, 5, 3, 4, 2, 6)
	out := tensors.New(shapes.Make(shapes.Int64, 3))

	require.NoError(t, b.ArgMax(x, out))
	assert.Equal(t, []float64{1, 0, 1}, out.Flat())

	require.NoError(t, b.ArgMin(x, out))
	assert.Equal(t, []float64{0, 1, 0}, out.Flat())

	// Ties resolve to the first occurrence.
	tied := tensorOf(t, []int{3}, 7, 7, 7)
	scalar := tensors.New(shapes.Scalar(shapes.Int64))
	require.NoError(t, b.ArgMax(tied, scalar))
	assert.Equal(t, 0.0, scalar.Flat()[0])

	err := b.ArgMax(x, tensors.New(shapes.Make(shapes.Int64, 2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrShapeMismatch)
}

func TestSetItem(t *testing.T) {
	b := New()
	out := tensorOf(t, []int{2, 2}, 1, 2, 3, 4)

	require.NoError(t, b.SetItem(out, []int{1, 0}, 9))
	assert.Equal(t, []float64{1, 2, 9, 4}, out.Flat())

	err := b.SetItem(out, []int{1}, 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrShapeMismatch)
}

func TestBroadcast(t *testing.T) {
	b := New()
	x := tensorOf(t, []int{2}, 1, 2)

	front := tensors.New(shapes.Make(shapes.Float64, 3, 2))
	require.NoError(t, b.Broadcast(x, 0, 3, front))
	assert.Equal(t, []float64{1, 2, 1, 2, 1, 2}, front.Flat())

	back := tensors.New(shapes.Make(shapes.Float64, 2, 3))
	require.NoError(t, b.Broadcast(x, 1, 3, back))
	assert.Equal(t, []float64{1, 1, 1, 2, 2, 2}, back.Flat())
}

func TestDot(t *testing.T) {
	b := New()
	// x = [[1 2] [3 4]], y = [[5 6] [7 8]]
	x := tensorOf(t, []int{2, 2}, 1, 2, 3, 4)
	y := tensorOf(t, []int{2, 2}, 5, 6, 7, 8)
	out := tensors.New(shapes.Make(shapes.Float64, 2, 2))

	require.NoError(t, b.Dot(x, y, false, false, out))
	assert.Equal(t, []float64{19, 22, 43, 50}, out.Flat())

	require.NoError(t, b.Dot(x, y, true, false, out))
	assert.Equal(t, []float64{26, 30, 38, 44}, out.Flat())

	require.NoError(t, b.Dot(x, y, false, true, out))
	assert.Equal(t, []float64{17, 23, 39, 53}, out.Flat())

	// Rectangular: [2,3] x [3,2] -> [2,2].
	a := tensorOf(t, []int{2, 3}, 1, 2, 3, 4, 5, 6)
	c := tensorOf(t, []int{3, 2}, 1, 0, 0, 1, 1, 1)
	require.NoError(t, b.Dot(a, c, false, false, out))
	assert.Equal(t, []float64{4, 5, 10, 11}, out.Flat())

	err := b.Dot(a, y, false, false, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, transform.ErrShapeMismatch)
}

func TestUniformTensorAndStats(t *testing.T) {
	b := New()
	rng := b.Rng(42)
	desc := tensors.NewDescription(shapes.Make(shapes.Float64, 100))
	tensor, err := b.UniformTensor(rng, desc, -1, 1)
	require.NoError(t, err)
	for _, v := range tensor.Flat() {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)
	}
	assert.Equal(t, 1, b.Stats.UniformFills)

	// Same seed, same stream.
	tensor2, err := b.UniformTensor(b.Rng(42), desc, -1, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Flat(), tensor2.Flat())
}
