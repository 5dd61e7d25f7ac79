package protocol

// Fifo is a byte ring buffer sitting between a serial port reader and the
// frame assembler. Reads from a port arrive in arbitrary chunks; the fifo
// lets the parse loop drain them strictly one byte at a time.
type Fifo struct {
	buf   []byte
	read  int
	write int
	size  int
}

// NewFifo creates a fifo holding up to capacity-1 bytes.
func NewFifo(capacity int) *Fifo {
	return &Fifo{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data, returning how many bytes fit.
func (f *Fifo) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (f.write + 1) % f.size
		if next == f.read {
			break // full
		}
		f.buf[f.write] = b
		f.write = next
		written++
	}
	return written
}

// Next pops the oldest byte. ok is false when the fifo is empty.
func (f *Fifo) Next() (b byte, ok bool) {
	if f.read == f.write {
		return 0, false
	}
	b = f.buf[f.read]
	f.read = (f.read + 1) % f.size
	return b, true
}

// Available returns the number of buffered bytes.
func (f *Fifo) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Free returns how many more bytes Write can accept.
func (f *Fifo) Free() int {
	return f.size - f.Available() - 1
}

// IsEmpty reports whether the fifo holds no data.
func (f *Fifo) IsEmpty() bool {
	return f.read == f.write
}

// Reset discards all buffered data.
func (f *Fifo) Reset() {
	f.read = 0
	f.write = 0
}
