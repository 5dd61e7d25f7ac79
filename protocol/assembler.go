package protocol

import (
	"errors"
	"time"
)

// Framing errors reported by the assembler. Frames failing this way carry no
// trustworthy sender address, so the caller only counts them; no response
// goes out on the bus.
var (
	ErrBadEndMarker = errors.New("protocol: missing end marker")
	ErrOverflow     = errors.New("protocol: frame exceeds buffer capacity")
	ErrIdleTimeout  = errors.New("protocol: idle timeout, partial frame dropped")
)

// Assembler reassembles frames from a half-duplex line one byte at a time.
// It must be fed every received byte in arrival order. The zero value is not
// usable; create instances with NewAssembler.
//
// State is driven entirely by Feed: bytes before a start marker are
// discarded, the length field is latched once the header is complete, and
// the frame is cut as soon as the declared length plus trailer has been
// accumulated. Overflow and inter-byte idle gaps reset the assembler so a
// corrupted stream always resynchronizes on the next start marker.
type Assembler struct {
	buf    [MaxFrameSize]byte
	n      int
	expect int // declared payload length, -1 until the header is complete
	last   time.Time
	now    func() time.Time
}

// NewAssembler creates an assembler. now supplies monotonic timestamps for
// idle-timeout detection; pass nil for time.Now.
func NewAssembler(now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{expect: -1, now: now}
}

// Reset discards any partially accumulated frame.
func (a *Assembler) Reset() {
	a.n = 0
	a.expect = -1
}

// Pending reports how many bytes of a partial frame are accumulated.
func (a *Assembler) Pending() int {
	return a.n
}

// Feed consumes one received byte. It returns a structurally complete frame
// (start marker through end marker) once one has been accumulated, or a
// framing error when the byte caused a discard. Both results leave the
// assembler idle, ready for the next start marker.
func (a *Assembler) Feed(b byte) ([]byte, error) {
	now := a.now()
	var timeoutErr error
	if a.n > 0 && now.Sub(a.last) > IdleTimeout {
		// Transmitter disappeared mid-frame; drop the partial frame
		// before looking at the new byte.
		a.Reset()
		timeoutErr = ErrIdleTimeout
	}
	a.last = now

	if a.n == 0 && b != StartByte {
		return nil, timeoutErr
	}

	a.buf[a.n] = b
	a.n++

	if a.n == HeaderSize {
		a.expect = int(a.buf[4])
	}

	if a.n >= MinFrameSize && a.expect >= 0 && a.n >= HeaderSize+a.expect+TrailerSize {
		ok := a.buf[a.n-1] == EndByte
		frame := make([]byte, a.n)
		copy(frame, a.buf[:a.n])
		a.Reset()
		if !ok {
			return nil, ErrBadEndMarker
		}
		return frame, timeoutErr
	}

	if a.n >= MaxFrameSize {
		a.Reset()
		return nil, ErrOverflow
	}

	return nil, timeoutErr
}
