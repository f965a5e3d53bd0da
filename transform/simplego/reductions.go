package simplego

import (
	"math"

	"github.com/gomlx/tfgraph/graph"
	"github.com/gomlx/tfgraph/transform"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/pkg/errors"
)

// Reduction, broadcast and contraction kernels.

// reduceKernel folds x along the given axis (or every axis for
// graph.ReduceAllAxes) into out, starting from init.
func (b *Backend) reduceKernel(x *tensors.Tensor, axis int, out *tensors.Tensor, init float64,
	fold func(acc, v float64) float64) error {
	b.Stats.KernelCalls++

	if axis == graph.ReduceAllAxes {
		if out.Size() != 1 {
			return errors.Wrapf(transform.ErrShapeMismatch, "simplego: full reduction of %s into %s", x.Shape(), out.Shape())
		}
		acc := init
		for _, v := range x.Flat() {
			acc = fold(acc, v)
		}
		out.Flat()[0] = acc
		return nil
	}

	dims := x.Shape().Dimensions
	if axis < 0 || axis >= len(dims) || out.Size()*dims[axis] != x.Size() {
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: reduction of %s along axis %d into %s",
			x.Shape(), axis, out.Shape())
	}

	// With row-major layout, the flat index factors as
	// (outer*dims[axis] + k)*inner + idx, with the reduced axis in the middle.
	inner := 1
	for _, dim := range dims[axis+1:] {
		inner *= dim
	}
	outer := x.Size() / (dims[axis] * inner)

	outFlat := out.Flat()
	for ii := range outFlat {
		outFlat[ii] = init
	}
	xFlat := x.Flat()
	for o := 0; o < outer; o++ {
		for k := 0; k < dims[axis]; k++ {
			base := (o*dims[axis] + k) * inner
			outBase := o * inner
			for i := 0; i < inner; i++ {
				outFlat[outBase+i] = fold(outFlat[outBase+i], xFlat[base+i])
			}
		}
	}
	return nil
}

// Sum implements transform.Backend.
func (b *Backend) Sum(x *tensors.Tensor, axis int, out *tensors.Tensor) error {
	return b.reduceKernel(x, axis, out, 0, func(acc, v float64) float64 { return acc + v })
}

// Mean implements transform.Backend.
func (b *Backend) Mean(x *tensors.Tensor, axis int, out *tensors.Tensor) error {
	if err := b.Sum(x, axis, out); err != nil {
		return err
	}
	count := x.Size()
	if axis != graph.ReduceAllAxes {
		count = x.Shape().Dimensions[axis]
	}
	outFlat := out.Flat()
	for ii := range outFlat {
		outFlat[ii] /= float64(count)
	}
	return nil
}

// Max implements transform.Backend.
func (b *Backend) Max(x *tensors.Tensor, axis int, out *tensors.Tensor) error {
	return b.reduceKernel(x, axis, out, math.Inf(-1), math.Max)
}

// Min implements transform.Backend.
func (b *Backend) Min(x *tensors.Tensor, axis int, out *tensors.Tensor) error {
	return b.reduceKernel(x, axis, out, math.Inf(1), math.Min)
}

// argKernel scans x along its leading axis and writes the index of the
// first extreme value of each column into out.
func (b *Backend) argKernel(x, out *tensors.Tensor, better func(v, best float64) bool) error {
	b.Stats.KernelCalls++
	dims := x.Shape().Dimensions
	if len(dims) < 1 || out.Size()*dims[0] != x.Size() {
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: index reduction of %s into %s", x.Shape(), out.Shape())
	}
	inner := out.Size()
	xFlat, outFlat := x.Flat(), out.Flat()
	for i := 0; i < inner; i++ {
		best, bestIdx := xFlat[i], 0
		for k := 1; k < dims[0]; k++ {
			if v := xFlat[k*inner+i]; better(v, best) {
				best, bestIdx = v, k
			}
		}
		outFlat[i] = float64(bestIdx)
	}
	return nil
}

// ArgMax implements transform.Backend.
func (b *Backend) ArgMax(x, out *tensors.Tensor) error {
	return b.argKernel(x, out, func(v, best float64) bool { return v > best })
}

// ArgMin implements transform.Backend.
func (b *Backend) ArgMin(x, out *tensors.Tensor) error {
	return b.argKernel(x, out, func(v, best float64) bool { return v < best })
}

// Broadcast implements transform.Backend: inserts an axis of the given
// length at position axis of x's shape, repeating x along it.
func (b *Backend) Broadcast(x *tensors.Tensor, axis, length int, out *tensors.Tensor) error {
	b.Stats.KernelCalls++
	dims := x.Shape().Dimensions
	if axis < 0 || axis > len(dims) || x.Size()*length != out.Size() {
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: broadcast of %s along new axis %d (length %d) into %s",
			x.Shape(), axis, length, out.Shape())
	}
	inner := 1
	for _, dim := range dims[axis:] {
		inner *= dim
	}
	outer := x.Size() / inner

	xFlat, outFlat := x.Flat(), out.Flat()
	for o := 0; o < outer; o++ {
		src := xFlat[o*inner : (o+1)*inner]
		for k := 0; k < length; k++ {
			copy(outFlat[(o*length+k)*inner:], src)
		}
	}
	return nil
}

// Dot implements transform.Backend: the matrix product of two rank-2
// tensors, with optional transposes. A naive triple loop; the engine calls
// it with out pre-allocated to the contracted shape.
func (b *Backend) Dot(x, y *tensors.Tensor, transposeLhs, transposeRhs bool, out *tensors.Tensor) error {
	b.Stats.KernelCalls++
	if x.Shape().Rank() != 2 || y.Shape().Rank() != 2 || out.Shape().Rank() != 2 {
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: Dot wants rank-2 operands, got %s x %s -> %s",
			x.Shape(), y.Shape(), out.Shape())
	}
	at := func(t *tensors.Tensor, transpose bool, i, j int) float64 {
		if transpose {
			return t.At(j, i)
		}
		return t.At(i, j)
	}
	dim := func(t *tensors.Tensor, transpose bool, axis int) int {
		if transpose {
			axis = 1 - axis
		}
		return t.Shape().Dimensions[axis]
	}

	m, k := dim(x, transposeLhs, 0), dim(x, transposeLhs, 1)
	k2, n := dim(y, transposeRhs, 0), dim(y, transposeRhs, 1)
	if k != k2 || out.Shape().Dimensions[0] != m || out.Shape().Dimensions[1] != n {
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: Dot of %s (T=%v) x %s (T=%v) into %s",
			x.Shape(), transposeLhs, y.Shape(), transposeRhs, out.Shape())
	}

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			acc := 0.0
			for kk := 0; kk < k; kk++ {
				acc += at(x, transposeLhs, i, kk) * at(y, transposeRhs, kk, j)
			}
			out.Set(acc, i, j)
		}
	}
	return nil
}
