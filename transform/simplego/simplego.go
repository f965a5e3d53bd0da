// Package simplego is the pure-Go reference backend of the transform
// engine: a straightforward float64 implementation of every kernel, with
// no concurrency and no external dependencies. It favors being obviously
// correct over being fast, and doubles as the instrumented backend the
// engine's allocation-memoization tests count against.
package simplego

import (
	"math"
	"math/rand"

	"github.com/gomlx/tfgraph/transform"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/pkg/errors"
)

// Stats counts backend activity, for tests asserting on allocation
// memoization and kernel dispatch.
type Stats struct {
	// Allocations counts Empty calls: one per operation materialized by
	// the transformer.
	Allocations int

	// UniformFills counts UniformTensor calls: one per allocation-closure
	// resolution.
	UniformFills int

	// KernelCalls counts every kernel invocation.
	KernelCalls int
}

// Backend implements transform.Backend with plain Go float64 loops.
type Backend struct {
	// Stats accumulates counters; reset it directly between measurements.
	Stats Stats
}

// Compile-time check.
var _ transform.Backend = (*Backend)(nil)

// New returns a fresh backend.
func New() *Backend {
	return &Backend{}
}

// Name implements transform.Backend.
func (b *Backend) Name() string {
	return "simplego"
}

// Empty implements transform.Backend: storage starts zeroed.
func (b *Backend) Empty(desc tensors.Description) *tensors.Tensor {
	b.Stats.Allocations++
	return tensors.NewFromDescription(desc)
}

// Rng implements transform.Backend. The handle is a *rand.Rand: execution
// is reproducible for a fixed seed and a fixed sequence of draws.
func (b *Backend) Rng(seed int64) any {
	return rand.New(rand.NewSource(seed))
}

// UniformTensor implements transform.Backend.
func (b *Backend) UniformTensor(rngHandle any, desc tensors.Description, low, high float64) (*tensors.Tensor, error) {
	rng, ok := rngHandle.(*rand.Rand)
	if !ok {
		return nil, errors.Errorf("simplego: rng handle is %T, want *rand.Rand from Backend.Rng", rngHandle)
	}
	b.Stats.UniformFills++
	t := tensors.NewFromDescription(desc)
	flat := t.Flat()
	for ii := range flat {
		flat[ii] = low + rng.Float64()*(high-low)
	}
	return t, nil
}

// checkSameSize validates an element-wise kernel's operands.
func checkSameSize(x, out *tensors.Tensor) error {
	if x.Size() != out.Size() {
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: kernel input %s vs output %s", x.Shape(), out.Shape())
	}
	return nil
}

// Fill implements transform.Backend.
func (b *Backend) Fill(out *tensors.Tensor, value float64) error {
	b.Stats.KernelCalls++
	out.Fill(value)
	return nil
}

// Copy implements transform.Backend.
func (b *Backend) Copy(x, out *tensors.Tensor) error {
	b.Stats.KernelCalls++
	if err := checkSameSize(x, out); err != nil {
		return err
	}
	copy(out.Flat(), x.Flat())
	return nil
}

// SetItem implements transform.Backend.
func (b *Backend) SetItem(out *tensors.Tensor, indices []int, value float64) error {
	b.Stats.KernelCalls++
	if len(indices) != out.Shape().Rank() {
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: SetItem with %d indices on %s", len(indices), out.Shape())
	}
	out.Set(value, indices...)
	return nil
}

// unaryKernel applies fn element-wise into out.
func (b *Backend) unaryKernel(x, out *tensors.Tensor, fn func(float64) float64) error {
	b.Stats.KernelCalls++
	if err := checkSameSize(x, out); err != nil {
		return err
	}
	xFlat, outFlat := x.Flat(), out.Flat()
	for ii, v := range xFlat {
		outFlat[ii] = fn(v)
	}
	return nil
}

// Neg implements transform.Backend.
func (b *Backend) Neg(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, func(v float64) float64 { return -v })
}

// Abs implements transform.Backend.
func (b *Backend) Abs(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, math.Abs)
}

// Sign implements transform.Backend.
func (b *Backend) Sign(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, func(v float64) float64 {
		if v > 0 {
			return 1
		} else if v < 0 {
			return -1
		}
		return 0
	})
}

// Exp implements transform.Backend.
func (b *Backend) Exp(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, math.Exp)
}

// Log implements transform.Backend.
func (b *Backend) Log(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, math.Log)
}

// Sqrt implements transform.Backend.
func (b *Backend) Sqrt(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, math.Sqrt)
}

// Square implements transform.Backend.
func (b *Backend) Square(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, func(v float64) float64 { return v * v })
}

// Reciprocal implements transform.Backend.
func (b *Backend) Reciprocal(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, func(v float64) float64 { return 1 / v })
}

// Sin implements transform.Backend.
func (b *Backend) Sin(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, math.Sin)
}

// Cos implements transform.Backend.
func (b *Backend) Cos(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, math.Cos)
}

// Tanh implements transform.Backend.
func (b *Backend) Tanh(x, out *tensors.Tensor) error {
	return b.unaryKernel(x, out, math.Tanh)
}

// binaryKernel applies fn element-wise into out; a scalar operand
// broadcasts against the other.
func (b *Backend) binaryKernel(x, y, out *tensors.Tensor, fn func(x, y float64) float64) error {
	b.Stats.KernelCalls++
	xFlat, yFlat, outFlat := x.Flat(), y.Flat(), out.Flat()
	switch {
	case x.Size() == y.Size() && x.Size() == out.Size():
		for ii := range outFlat {
			outFlat[ii] = fn(xFlat[ii], yFlat[ii])
		}
	case x.Size() == 1 && y.Size() == out.Size():
		scalar := xFlat[0]
		for ii := range outFlat {
			outFlat[ii] = fn(scalar, yFlat[ii])
		}
	case y.Size() == 1 && x.Size() == out.Size():
		scalar := yFlat[0]
		for ii := range outFlat {
			outFlat[ii] = fn(xFlat[ii], scalar)
		}
	default:
		return errors.Wrapf(transform.ErrShapeMismatch, "simplego: binary kernel on %s, %s -> %s",
			x.Shape(), y.Shape(), out.Shape())
	}
	return nil
}

// Add implements transform.Backend.
func (b *Backend) Add(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return x + y })
}

// Sub implements transform.Backend.
func (b *Backend) Sub(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return x - y })
}

// Mul implements transform.Backend.
func (b *Backend) Mul(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return x * y })
}

// Div implements transform.Backend.
func (b *Backend) Div(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return x / y })
}

// Maximum implements transform.Backend.
func (b *Backend) Maximum(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, math.Max)
}

// Minimum implements transform.Backend.
func (b *Backend) Minimum(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, math.Min)
}

func mask(cond bool) float64 {
	if cond {
		return 1
	}
	return 0
}

// Equal implements transform.Backend.
func (b *Backend) Equal(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return mask(x == y) })
}

// NotEqual implements transform.Backend.
func (b *Backend) NotEqual(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return mask(x != y) })
}

// Greater implements transform.Backend.
func (b *Backend) Greater(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return mask(x > y) })
}

// GreaterOrEqual implements transform.Backend.
func (b *Backend) GreaterOrEqual(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return mask(x >= y) })
}

// Less implements transform.Backend.
func (b *Backend) Less(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return mask(x < y) })
}

// LessOrEqual implements transform.Backend.
func (b *Backend) LessOrEqual(x, y, out *tensors.Tensor) error {
	return b.binaryKernel(x, y, out, func(x, y float64) float64 { return mask(x <= y) })
}
