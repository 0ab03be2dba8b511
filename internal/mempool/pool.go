// Package mempool pools the full-page scratch buffers used by the detector.
package mempool

import (
	"sync"
)

const classStep = 1024

// sizeClass rounds n up to the next multiple of 1024 (minimum 1024).
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

// Pool hands out zeroed slices of T grouped into size classes.
type Pool[T any] struct {
	classes sync.Map // size class -> *sync.Pool
}

func (p *Pool[T]) class(cls int) *sync.Pool {
	v, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return v.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// Get returns a zeroed slice of length n. Return it with Put when done.
func (p *Pool[T]) Get(n int) []T {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp, ok := p.class(cls).Get().(*[]T)
	if !ok || cap(*bp) < cls {
		return make([]T, n, cls)
	}
	buf := (*bp)[:n]
	clear(buf)
	return buf
}

// Put returns buf to the pool. Nil slices and slices whose capacity is not
// a size class are ignored.
func (p *Pool[T]) Put(buf []T) {
	c := cap(buf)
	if c == 0 || c != sizeClass(c) {
		return
	}
	buf = buf[:c]
	p.class(c).Put(&buf)
}

var (
	bools    Pool[bool]
	ints     Pool[int]
	float32s Pool[float32]
	float64s Pool[float64]
)

// GetBool returns a zeroed []bool of length n.
func GetBool(n int) []bool { return bools.Get(n) }

// PutBool returns a buffer from GetBool.
func PutBool(buf []bool) { bools.Put(buf) }

// GetInt returns a zeroed []int of length n.
func GetInt(n int) []int { return ints.Get(n) }

// PutInt returns a buffer from GetInt.
func PutInt(buf []int) { ints.Put(buf) }

// GetFloat32 returns a zeroed []float32 of length n.
func GetFloat32(n int) []float32 { return float32s.Get(n) }

// PutFloat32 returns a buffer from GetFloat32.
func PutFloat32(buf []float32) { float32s.Put(buf) }

// GetFloat64 returns a zeroed []float64 of length n.
func GetFloat64(n int) []float64 { return float64s.Get(n) }

// PutFloat64 returns a buffer from GetFloat64.
func PutFloat64(buf []float64) { float64s.Put(buf) }
