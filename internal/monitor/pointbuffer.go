package monitor

import "sync"

const defaultPointCapacity = 1000

// Point is one buffered measurement row.
type Point struct {
	Measurement string
	Values      map[string]float64
	Sequence    int
}

// PointBuffer is a fixed-capacity ring of recent data points for live chart
// rendering. When full, the oldest point is evicted.
type PointBuffer struct {
	mu     sync.Mutex
	points []Point
	next   int
	full   bool
}

// NewPointBuffer creates a buffer holding up to capacity points; zero or
// negative selects the default of 1000.
func NewPointBuffer(capacity int) *PointBuffer {
	if capacity <= 0 {
		capacity = defaultPointCapacity
	}
	return &PointBuffer{points: make([]Point, capacity)}
}

func (b *PointBuffer) Append(p Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points[b.next] = p
	b.next++
	if b.next == len(b.points) {
		b.next = 0
		b.full = true
	}
}

// Len returns the number of buffered points.
func (b *PointBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.points)
	}
	return b.next
}

// Points returns a snapshot ordered oldest first.
func (b *PointBuffer) Points() []Point {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]Point, b.next)
		copy(out, b.points[:b.next])
		return out
	}

	out := make([]Point, 0, len(b.points))
	out = append(out, b.points[b.next:]...)
	out = append(out, b.points[:b.next]...)
	return out
}
