// Package hdlc implements the HDLC-lite framing used on the link to the
// radio co-processor: payload plus 16-bit FCS, flag and escape octets
// byte-stuffed, a flag delimiter at each end of the frame.
package hdlc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxFrameSize bounds the payload carried by a single frame, enforced
	// symmetrically on encode and decode.
	MaxFrameSize = 2048

	flagByte   = 0x7E // frame delimiter
	escapeByte = 0x7D // next octet is XORed with escapeMask
	escapeMask = 0x20

	fcsSize = 2
)

var (
	// ErrFrameTooLarge is returned when a payload exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("hdlc: frame too large")

	// ErrNoBufs is returned when the encoded frame does not fit the
	// destination buffer.
	ErrNoBufs = errors.New("hdlc: buffer too small")

	// ErrChecksum is reported to the FrameHandler when a received frame
	// fails FCS verification.
	ErrChecksum = errors.New("hdlc: fcs mismatch")

	// ErrOverflow is reported to the FrameHandler when a received frame
	// exceeds MaxFrameSize.
	ErrOverflow = errors.New("hdlc: frame overflow")
)

// MaxEncodedLen returns the worst-case wire size of an n-byte payload: a flag
// at each end with every payload and FCS octet escaped.
func MaxEncodedLen(n int) int {
	return 2 + 2*(n+fcsSize)
}

// Encode writes the wire form of payload into dst and returns the number of
// bytes written. Encoding is all or nothing: a payload over MaxFrameSize
// fails with ErrFrameTooLarge and a dst too small for the escaped frame fails
// with ErrNoBufs, in both cases before anything is written to dst. Sizing dst
// with MaxEncodedLen(len(payload)) never fails with ErrNoBufs.
func Encode(dst, payload []byte) (int, error) {
	if len(payload) > MaxFrameSize {
		return 0, fmt.Errorf("hdlc: encode %d byte payload: %w", len(payload), ErrFrameTooLarge)
	}
	var trailer [fcsSize]byte
	binary.LittleEndian.PutUint16(trailer[:], frameFCS(payload))

	need := 2
	for _, b := range payload {
		need += stuffedLen(b)
	}
	need += stuffedLen(trailer[0]) + stuffedLen(trailer[1])
	if need > len(dst) {
		return 0, fmt.Errorf("hdlc: encode needs %d bytes, have %d: %w", need, len(dst), ErrNoBufs)
	}

	dst[0] = flagByte
	w := 1
	w += stuff(dst[w:], payload)
	w += stuff(dst[w:], trailer[:])
	dst[w] = flagByte
	return w + 1, nil
}

func stuffedLen(b byte) int {
	if b == flagByte || b == escapeByte {
		return 2
	}
	return 1
}

func stuff(dst, src []byte) int {
	w := 0
	for _, b := range src {
		if b == flagByte || b == escapeByte {
			dst[w] = escapeByte
			dst[w+1] = b ^ escapeMask
			w += 2
			continue
		}
		dst[w] = b
		w++
	}
	return w
}

// FrameHandler receives the decoder's output. Both callbacks run
// synchronously from within Decode; the slices they receive are reused
// afterwards, so implementations must copy anything they keep.
type FrameHandler interface {
	// HandleFrame delivers a verified frame payload, FCS stripped.
	HandleFrame(frame []byte)

	// HandleError reports a garbled frame together with the bytes
	// accumulated so far. err is ErrChecksum or ErrOverflow; the decoder
	// has already resynchronized when the call is made.
	HandleError(err error, partial []byte)
}

type decodeState uint8

const (
	stateNoSync decodeState = iota // discarding until the next flag
	stateSync                      // inside a frame
	stateEscape                    // escape seen, next octet is masked
)

// Decoder is a streaming HDLC-lite decoder. Feed it chunks of the byte
// stream in arrival order; frames are reassembled across arbitrary chunk
// boundaries and handed to the FrameHandler as they complete. Not safe for
// concurrent use.
type Decoder struct {
	handler FrameHandler
	state   decodeState
	fcs     uint16
	acc     []byte // payload plus trailing FCS of the frame in progress
}

// NewDecoder returns a decoder delivering frames and decode errors to h.
func NewDecoder(h FrameHandler) *Decoder {
	return &Decoder{
		handler: h,
		acc:     make([]byte, 0, MaxFrameSize+fcsSize),
	}
}

// Decode consumes one chunk of the byte stream. Garbled frames are reported
// through the handler and never stop decoding; the decoder resynchronizes on
// the next flag.
func (d *Decoder) Decode(p []byte) {
	for _, b := range p {
		switch d.state {
		case stateNoSync:
			if b == flagByte {
				d.begin()
			}
		case stateSync:
			switch b {
			case flagByte:
				d.finish()
			case escapeByte:
				d.state = stateEscape
			default:
				d.accept(b)
			}
		case stateEscape:
			if b == flagByte {
				// Flag always terminates the frame in progress; the
				// dangling escape is abandoned.
				d.finish()
				continue
			}
			d.accept(b ^ escapeMask)
		}
	}
}

// Reset discards any frame in progress and waits for the next flag.
func (d *Decoder) Reset() {
	d.acc = d.acc[:0]
	d.state = stateNoSync
}

func (d *Decoder) begin() {
	d.acc = d.acc[:0]
	d.fcs = newFCS()
	d.state = stateSync
}

// accept appends one unescaped octet, or aborts the frame when full.
func (d *Decoder) accept(b byte) {
	if len(d.acc) == cap(d.acc) {
		d.handler.HandleError(ErrOverflow, d.acc)
		d.state = stateNoSync
		return
	}
	d.acc = append(d.acc, b)
	d.fcs = updateFCS(d.fcs, b)
	d.state = stateSync
}

// finish handles a flag seen mid-frame: verify and deliver the accumulated
// frame, or report it. Back-to-back flags carry no frame and are not an
// error.
func (d *Decoder) finish() {
	n := len(d.acc)
	if n == 0 {
		d.begin()
		return
	}
	if n >= fcsSize && completeFCS(d.fcs) == goodFCS {
		d.handler.HandleFrame(d.acc[:n-fcsSize])
	} else {
		d.handler.HandleError(ErrChecksum, d.acc)
	}
	d.begin()
}
