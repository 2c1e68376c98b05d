package internal

import "sync"

// pool is a typed sync.Pool that is warmed on creation so the first burst
// of dispatches does not allocate.
type pool[T any] struct {
	p     sync.Pool
	reset func(*T)
}

func newPool[T any](warm int, reset func(*T)) *pool[T] {
	p := &pool[T]{reset: reset}
	p.p.New = func() interface{} {
		return new(T)
	}
	var t = make([]*T, warm)
	for i := 0; i < warm; i++ {
		t[i] = p.Get()
	}
	for i := 0; i < warm; i++ {
		p.Put(t[i])
	}
	return p
}

func (p *pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *pool[T]) Put(v *T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}
