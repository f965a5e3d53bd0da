package transform

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/tfgraph/graph"
	"github.com/gomlx/tfgraph/types/tensors"
	"github.com/pkg/errors"
)

// This file implements the two derivative builders of the engine. Both
// compute d(sum(output)) / d(withRespectTo), element-wise with the
// with-respect-to operation's shape: the symbolic one by reverse-mode
// autodiff over the graph, the numeric one by finite differences. The
// numeric builder exists solely as an oracle to cross-check the symbolic
// one; callers compare the two with a tolerance, never exactly.

// BuildSymbolicDerivative compiles an executor computing the exact
// (chain-rule) derivative of output with respect to withRespectTo. The
// executor's calling convention is the forward one with one extra leading
// argument: the concrete value of withRespectTo, followed by one tensor per
// otherInputs entry.
func (tr *Transformer) BuildSymbolicDerivative(output, withRespectTo *graph.Node, otherInputs ...*graph.Node) (Executor, error) {
	var grad *graph.Node
	err := exceptions.TryCatch[error](func() {
		grad = graph.Gradient(output, withRespectTo)[0]
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "BuildSymbolicDerivative of %q with respect to %q",
			output.Name(), withRespectTo.Name())
	}
	inputs := append([]*graph.Node{withRespectTo}, otherInputs...)
	return tr.BuildExecutor(grad, inputs...)
}

// BuildNumericDerivative compiles an executor approximating the same
// derivative by one-sided finite differences: each scalar element of the
// with-respect-to tensor is perturbed by epsilon independently and the
// forward executor re-run. The calling convention matches
// BuildSymbolicDerivative.
//
// Execution cost is one forward run per element of withRespectTo, plus
// one: it is an oracle for tests, not a practical gradient.
func (tr *Transformer) BuildNumericDerivative(output, withRespectTo *graph.Node, epsilon float64, otherInputs ...*graph.Node) (Executor, error) {
	if epsilon == 0 {
		return nil, errors.New("BuildNumericDerivative: epsilon must be non-zero")
	}
	inputs := append([]*graph.Node{withRespectTo}, otherInputs...)
	forward, err := tr.BuildExecutor(output, inputs...)
	if err != nil {
		return nil, err
	}

	return func(args ...*tensors.Tensor) (*tensors.Tensor, error) {
		if len(args) != len(inputs) {
			return nil, errors.Errorf("numeric derivative of %q: got %d arguments, want %d",
				output.Name(), len(args), len(inputs))
		}
		// Perturb a private copy, not the caller's tensor.
		perturbed := args[0].Clone()
		forwardArgs := append([]*tensors.Tensor{perturbed}, args[1:]...)

		base, err := forward(forwardArgs...)
		if err != nil {
			return nil, err
		}
		baseSum := tensorSum(base)

		result := tensors.New(perturbed.Shape())
		flat := perturbed.Flat()
		grads := result.Flat()
		for ii := range flat {
			saved := flat[ii]
			flat[ii] = saved + epsilon
			value, err := forward(forwardArgs...)
			if err != nil {
				return nil, err
			}
			flat[ii] = saved
			grads[ii] = (tensorSum(value) - baseSum) / epsilon
		}
		return result, nil
	}, nil
}

func tensorSum(t *tensors.Tensor) float64 {
	sum := 0.0
	for _, v := range t.Flat() {
		sum += v
	}
	return sum
}
