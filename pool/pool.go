package pool

import "sync"

// DefaultCapacity bounds the number of size slots the pool keeps. A
// handful of recurring tensor shapes dominate traffic, so the pool is a
// cache of shapes, not a general allocator.
const DefaultCapacity = 5

type slot struct {
	buf  []float32
	tick uint64
}

// BufferPool hands out reusable float32 buffers keyed by element count.
// Acquire and release are short critical sections under one mutex; a
// buffer belongs exclusively to its acquirer until released.
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	slots    map[int]*slot
	tick     uint64
}

// New returns a pool holding at most capacity size slots. Non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BufferPool{
		capacity: capacity,
		slots:    make(map[int]*slot),
	}
}

// Acquire returns a buffer with at least size capacity, length size.
// A pooled buffer of the same size slot is preferred; otherwise a fresh
// one is allocated. Contents are unspecified, callers overwrite.
func (p *BufferPool) Acquire(size int) []float32 {
	p.mu.Lock()
	if s, ok := p.slots[size]; ok {
		delete(p.slots, size)
		p.mu.Unlock()
		if cap(s.buf) >= size {
			return s.buf[:size]
		}
	} else {
		p.mu.Unlock()
	}
	return make([]float32, size)
}

// Release returns buf to the pool under the given size key, replacing
// whatever buffer occupies that slot. When the pool is over capacity
// the least-recently-used slot is evicted.
func (p *BufferPool) Release(size int, buf []float32) {
	if buf == nil || cap(buf) < size {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tick++
	p.slots[size] = &slot{buf: buf[:size], tick: p.tick}

	if len(p.slots) <= p.capacity {
		return
	}
	oldestKey := -1
	var oldestTick uint64
	for key, s := range p.slots {
		if oldestKey == -1 || s.tick < oldestTick {
			oldestKey = key
			oldestTick = s.tick
		}
	}
	delete(p.slots, oldestKey)
}

// Len reports the number of occupied size slots.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Clear drops every pooled buffer.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = make(map[int]*slot)
}
