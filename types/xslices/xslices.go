// Package xslices holds generic slice helpers used across the module.
package xslices

import (
	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// At returns the element at the given index. Negative indices are taken from the end.
func At[T any](slice []T, index int) T {
	if index < 0 {
		index = len(slice) + index
	}
	return slice[index]
}

// Last returns the last element of the slice.
func Last[T any](slice []T) T {
	return At(slice, -1)
}

// Fill sets every element of the slice to the given value.
func Fill[T any](slice []T, value T) {
	for ii := range slice {
		slice[ii] = value
	}
}

// FillSlice returns a newly allocated slice of the given size with every
// element set to value.
func FillSlice[T any](size int, value T) []T {
	slice := make([]T, size)
	Fill(slice, value)
	return slice
}

// Iota returns a slice of the given size with values starting at start and
// incrementing by 1.
func Iota[T constraints.Integer | constraints.Float](start T, size int) []T {
	slice := make([]T, size)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return slice
}

// Max returns the largest element of the slice, or the zero value if the
// slice is empty.
func Max[T constraints.Ordered](slice []T) (max T) {
	if len(slice) == 0 {
		return
	}
	max = slice[0]
	for _, v := range slice[1:] {
		if v > max {
			max = v
		}
	}
	return
}
