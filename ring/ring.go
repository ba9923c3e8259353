// File: ring/ring.go
//
// Power-of-two sized byte ring buffer with growth, compaction and peek.
// The ring belongs to a single stream; methods are not safe for
// concurrent use.

package ring

import (
	"github.com/momentics/coopio/api"
)

const (
	// MinCapacity is the smallest allowed ring capacity.
	MinCapacity = 1 << 10
	// MaxCapacity is the hard growth cap.
	MaxCapacity = 16 << 20

	growthFactor = 1.5
)

// Buffer is a byte ring with two cursors and in-place wrap. Capacity is
// always a power of two, which keeps index arithmetic to a mask.
type Buffer struct {
	data []byte
	mask int
	head int // read index
	tail int // write index
	size int // live byte count
}

// New allocates a ring buffer. A capacity that is not positive or
// exceeds MaxCapacity fails; smaller ones are raised to MinCapacity and
// rounded up to the next power of two.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, api.Errorf(api.ErrCodeArgument, "ring: invalid capacity %d", capacity)
	}
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	capacity = nextPowerOfTwo(capacity)
	return &Buffer{data: make([]byte, capacity), mask: capacity - 1}, nil
}

// Len returns the number of live bytes.
func (b *Buffer) Len() int { return b.size }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Free returns the writable space before the next growth.
func (b *Buffer) Free() int { return len(b.data) - b.size }

// Write appends p, growing the ring as needed. Growth multiplies the
// capacity by 1.5, rounds up to the next power of two and caps at
// MaxCapacity; a write that cannot fit under the cap fails without
// consuming anything. Writing an empty slice is a no-op.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.size+len(p) > len(b.data) {
		if err := b.grow(b.size + len(p)); err != nil {
			return 0, err
		}
	}
	n := len(p)
	first := min(n, len(b.data)-b.tail)
	copy(b.data[b.tail:], p[:first])
	copy(b.data, p[first:])
	b.tail = (b.tail + n) & b.mask
	b.size += n
	return n, nil
}

// Read consumes and returns up to n bytes. Reading zero bytes is a
// no-op. When a read leaves the remaining data wrapped and shorter than
// a quarter of the capacity, the ring compacts so the data becomes
// contiguous at offset zero.
func (b *Buffer) Read(n int) []byte {
	if n <= 0 || b.size == 0 {
		return nil
	}
	n = min(n, b.size)
	out := make([]byte, n)
	first := min(n, len(b.data)-b.head)
	copy(out, b.data[b.head:b.head+first])
	copy(out[first:], b.data[:n-first])
	b.head = (b.head + n) & b.mask
	b.size -= n
	b.maybeCompact()
	return out
}

// Consume drops n bytes without copying them out.
func (b *Buffer) Consume(n int) {
	if n <= 0 || b.size == 0 {
		return
	}
	n = min(n, b.size)
	b.head = (b.head + n) & b.mask
	b.size -= n
	b.maybeCompact()
}

// Peek returns a contiguous copy of up to n bytes without consuming.
func (b *Buffer) Peek(n int) []byte {
	if n <= 0 || b.size == 0 {
		return nil
	}
	n = min(n, b.size)
	out := make([]byte, n)
	first := min(n, len(b.data)-b.head)
	copy(out, b.data[b.head:b.head+first])
	copy(out[first:], b.data[:n-first])
	return out
}

// Head returns the current read index. Useful for observing compaction.
func (b *Buffer) Head() int { return b.head }

// wrapped reports whether the live data crosses the end of the array.
func (b *Buffer) wrapped() bool { return b.head+b.size > len(b.data) }

func (b *Buffer) maybeCompact() {
	if b.size == 0 {
		b.head, b.tail = 0, 0
		return
	}
	if b.wrapped() && b.size < len(b.data)/4 {
		b.Compact()
	}
}

// Compact reorders the live data to [0, Len()).
func (b *Buffer) Compact() {
	if b.head == 0 {
		return
	}
	tmp := b.Peek(b.size)
	copy(b.data, tmp)
	b.head = 0
	b.tail = b.size & b.mask
}

func (b *Buffer) grow(need int) error {
	if need > MaxCapacity {
		return api.Errorf(api.ErrCodeArgument, "ring: capacity cap exceeded (need %d)", need)
	}
	target := int(float64(len(b.data)) * growthFactor)
	if target < need {
		target = need
	}
	target = nextPowerOfTwo(target)
	if target > MaxCapacity {
		target = MaxCapacity
	}
	data := make([]byte, target)
	n := b.size
	first := min(n, len(b.data)-b.head)
	copy(data, b.data[b.head:b.head+first])
	copy(data[first:], b.data[:n-first])
	b.data = data
	b.mask = target - 1
	b.head = 0
	b.tail = n & b.mask
	return nil
}

func nextPowerOfTwo(v int) int {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}
