package pool

import "sync"

// Pool is a typed wrapper around sync.Pool.
type Pool[T any] struct {
	p sync.Pool
}

func New[T any](fn func() T) *Pool[T] {
	return &Pool[T]{
		p: sync.Pool{
			New: func() any { return fn() },
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.p.Get().(T)
}

func (p *Pool[T]) Put(v T) {
	p.p.Put(v)
}
