package tpool_test

import (
	"image/png"
	"sync"
	"testing"

	"github.com/chiloven/lukosbot/tpool"
)

var _ png.EncoderBufferPool = (*tpool.Pool[*png.EncoderBuffer])(nil)

func TestAllocs(t *testing.T) {
	const iters, runs int = 1e3, 1e3
	u := testing.AllocsPerRun(runs, func() {
		var pool sync.Pool
		for range iters {
			x, _ := pool.Get().(*int)
			if x == nil {
				x = new(int)
			}
			pool.Put(x)
		}
	})
	v := testing.AllocsPerRun(runs, func() {
		var pool tpool.Pool[*int]
		for range iters {
			x := pool.Get()
			if x == nil {
				x = new(int)
			}
			pool.Put(x)
		}
	})
	if u != v {
		t.Errorf("different allocs per run: sync.Pool has %v, tpool.Pool[*int] has %v", u, v)
	}
}

func TestEmpty(t *testing.T) {
	var pool tpool.Pool[*int]
	if x := pool.Get(); x != nil {
		t.Errorf("empty pool gave %v", x)
	}
}

func TestOf(t *testing.T) {
	var made int
	pool := tpool.Of(func() []byte {
		made++
		return make([]byte, 0, 64)
	})
	b := pool.Get()
	if cap(b) != 64 {
		t.Errorf("wrong capacity: want 64, got %d", cap(b))
	}
	if made != 1 {
		t.Errorf("wrong number of constructions: want 1, got %d", made)
	}
}

func TestWrongType(t *testing.T) {
	pool := tpool.Pool[*int]{New: func() any { return "not an int" }}
	if x := pool.Get(); x != nil {
		t.Errorf("pool with mistyped New gave %v", x)
	}
}
