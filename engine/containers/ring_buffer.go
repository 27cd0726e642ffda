package containers

import "unsafe"

// RingBuffer is a fixed capacity array written front to back through a cursor.
// It is rewound with Reset once the consumer of the data is known to be done with it.
type RingBuffer[T any] struct {
	Data       []T
	Pos        int
	BufferSize int
	IsFull     bool
}

// Create a new RingBuffer backed by Go memory
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	return &RingBuffer[T]{
		Data:       make([]T, size),
		BufferSize: size,
	}
}

// NewRingBufferFromBytes views mapped memory as an array of T.
// The mapping must stay valid for as long as the ring buffer is used.
func NewRingBufferFromBytes[T any](mapped []byte) *RingBuffer[T] {
	var zero T
	size := len(mapped) / int(unsafe.Sizeof(zero))
	if size == 0 {
		return &RingBuffer[T]{}
	}
	return &RingBuffer[T]{
		Data:       unsafe.Slice((*T)(unsafe.Pointer(&mapped[0])), size),
		BufferSize: size,
	}
}

// Reserve claims n consecutive slots and returns the index of the first one.
// If the slots do not fit the buffer is flagged full and nothing is claimed.
func (rb *RingBuffer[T]) Reserve(n int) (int, bool) {
	if n < 0 || rb.Pos+n > rb.BufferSize {
		rb.IsFull = true
		return rb.Pos, false
	}
	start := rb.Pos
	rb.Pos += n
	rb.IsFull = false
	return start, true
}

// Push appends a single element
func (rb *RingBuffer[T]) Push(value T) bool {
	start, ok := rb.Reserve(1)
	if !ok {
		return false
	}
	rb.Data[start] = value
	return true
}

// Fits reports whether n more elements can be appended
func (rb *RingBuffer[T]) Fits(n int) bool {
	return rb.Pos+n <= rb.BufferSize
}

// Remaining returns the number of free slots
func (rb *RingBuffer[T]) Remaining() int {
	return rb.BufferSize - rb.Pos
}

// Reset rewinds the cursor. Only call this once the previous contents were consumed.
func (rb *RingBuffer[T]) Reset() {
	rb.Pos = 0
	rb.IsFull = false
}

// Invariant checks the cursor bounds
func (rb *RingBuffer[T]) Invariant() bool {
	return rb.Pos >= 0 && rb.Pos <= rb.BufferSize
}
