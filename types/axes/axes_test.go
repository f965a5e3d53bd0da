package axes

import (
	"testing"

	"github.com/gomlx/tfgraph/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxes(t *testing.T) {
	in := New("input", 5)
	rec := Recurrent("seq", 3)
	batch := Batch("batch", 1)
	a := Of(in, rec, batch)

	require.Equal(t, 3, a.Rank())
	assert.Equal(t, []int{5, 3, 1}, a.Lengths())
	assert.Equal(t, 15, a.Size())
	assert.Equal(t, 1, a.Index("seq"))
	assert.Equal(t, -1, a.Index("hidden"))
	assert.Equal(t, 2, a.BatchAxis())
	assert.Equal(t, 1, a.RecurrentAxis())
	assert.Equal(t, "{input[5], seq[3,rec], batch[1,batch]}", a.String())

	require.True(t, a.Equal(Of(in, rec, batch)))
	require.False(t, a.Equal(Of(in, rec)))
	require.False(t, a.Equal(Of(in, New("seq", 3), batch)))

	clone := a.Clone()
	clone[0].Length = 7
	assert.Equal(t, 5, a[0].Length)
}

func TestAxesShape(t *testing.T) {
	a := Of(New("hidden", 10), New("input", 5))
	shape := a.Shape(shapes.Float64)
	require.True(t, shape.Equal(shapes.Make(shapes.Float64, 10, 5)))

	scalar := Axes(nil)
	require.Equal(t, 1, scalar.Size())
	require.True(t, scalar.Shape(shapes.Float32).IsScalar())
}

func TestFromDimensions(t *testing.T) {
	a := FromDimensions(2, 4)
	require.Equal(t, 2, a.Rank())
	assert.Equal(t, "d0", a[0].Name)
	assert.Equal(t, "d1", a[1].Name)
	assert.Equal(t, []int{2, 4}, a.Lengths())
	assert.Equal(t, -1, a.BatchAxis())
}
