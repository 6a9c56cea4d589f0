package utils

// -----------------------------------------------------------------------------
// RingBuffer is a fixed-size circular buffer of encoded messages.
// Appending to a full buffer overwrites the oldest entry.
// Not safe for concurrent use; callers hold their own lock.
// -----------------------------------------------------------------------------

type RingBuffer struct {
	data     []string
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewRingBuffer creates a new buffer with fixed capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 120
	}

	return &RingBuffer{
		data:     make([]string, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a message, evicting the oldest one when full.
func (rb *RingBuffer) Append(msg string) {
	rb.data[rb.index] = msg
	rb.index = (rb.index + 1) % rb.capacity

	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n most recent messages, oldest first
func (rb *RingBuffer) GetLatest(n int) []string {
	if rb.size == 0 || n <= 0 {
		return []string{}
	}
	if n > rb.size {
		n = rb.size
	}

	result := make([]string, n)
	startIdx := (rb.index - n + rb.capacity) % rb.capacity
	for i := 0; i < n; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}
	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all messages in insertion order (oldest to newest)
func (rb *RingBuffer) GetAll() []string {
	return rb.GetLatest(rb.size)
}

// -----------------------------------------------------------------------------

// AppendTo appends the buffer contents, oldest first, to dst.
func (rb *RingBuffer) AppendTo(dst []string) []string {
	startIdx := 0
	if rb.size == rb.capacity {
		startIdx = rb.index
	}
	for i := 0; i < rb.size; i++ {
		dst = append(dst, rb.data[(startIdx+i)%rb.capacity])
	}
	return dst
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *RingBuffer) Size() int {
	return rb.size
}
