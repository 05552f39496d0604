// Package tpool provides a type-safe sync.Pool.
package tpool

import "sync"

// Pool is a [sync.Pool] holding values of type T.
// The zero value is an empty pool whose Get returns the zero T.
// If New is set, it must return values of type T.
type Pool[T any] sync.Pool

// Of returns a pool which creates values with f when empty.
func Of[T any](f func() T) *Pool[T] {
	return &Pool[T]{New: func() any { return f() }}
}

// Get removes a value from the pool. It mirrors [*sync.Pool.Get].
// If the pool is empty and has no New function, or New returns a value of
// the wrong type, the result is the zero T.
func (p *Pool[T]) Get() T {
	r, _ := (*sync.Pool)(p).Get().(T)
	return r
}

// Put adds a value to the pool.
func (p *Pool[T]) Put(e T) {
	(*sync.Pool)(p).Put(e)
}
