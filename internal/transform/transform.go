// Package transform provides pipeline stages that are both a sink for
// upstream values and a source for downstream ones.
package transform

import (
	"github.com/sweeney/sk-sensor/internal/flow"
)

// Lambda applies fn to every input and emits the result.
type Lambda[In, Out any] struct {
	flow.Producer[Out]
	fn func(In) Out
}

// NewLambda creates a stage that emits fn(v) for every v.
func NewLambda[In, Out any](fn func(In) Out) *Lambda[In, Out] {
	return &Lambda[In, Out]{fn: fn}
}

// Set converts v and emits it.
func (l *Lambda[In, Out]) Set(v In) {
	l.Emit(l.fn(v))
}

// Linear emits v*Multiplier + Offset.
type Linear struct {
	flow.Producer[float64]
	multiplier float64
	offset     float64
}

// NewLinear creates a linear scaling stage.
func NewLinear(multiplier, offset float64) *Linear {
	return &Linear{multiplier: multiplier, offset: offset}
}

// Set scales v and emits it.
func (l *Linear) Set(v float64) {
	l.Emit(v*l.multiplier + l.offset)
}

// ChangeFilter passes a value through only when it differs from the last one
// it passed. The first value always passes.
type ChangeFilter[T comparable] struct {
	flow.Producer[T]
}

// NewChangeFilter creates a change-only stage.
func NewChangeFilter[T comparable]() *ChangeFilter[T] {
	return &ChangeFilter[T]{}
}

// Set emits v if it is new.
func (c *ChangeFilter[T]) Set(v T) {
	if last, ok := c.Value(); ok && last == v {
		return
	}
	c.Emit(v)
}
