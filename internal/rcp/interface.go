// Package rcp drives the framed link to the radio co-processor: it owns the
// channel, encodes outbound frames and feeds inbound bytes through the
// streaming decoder, delivering completed frames to the owner's handler.
package rcp

import (
	"errors"
	"fmt"

	"github.com/wpanio/go-rcp-bridge/internal/channel"
	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
)

var (
	// ErrAlreadyInit is returned by Init on an interface that is already
	// initialized.
	ErrAlreadyInit = errors.New("rcp: already initialized")

	// ErrNotInit is returned for I/O on an interface that is not
	// initialized.
	ErrNotInit = errors.New("rcp: not initialized")

	// ErrBusy is returned when Read or ProcessReadData is re-entered from a
	// delivery callback while a decode pass is still running.
	ErrBusy = errors.New("rcp: decode in progress")

	// ErrWrite wraps irrecoverable channel write errors from SendFrame.
	ErrWrite = errors.New("rcp: write failed")

	// ErrTxOverflow is returned by buffered transmitters layered on the
	// interface when their queue toward the radio is full.
	ErrTxOverflow = errors.New("rcp: tx overflow")
)

// Endpoint is the open byte stream toward the RCP, implemented by
// *channel.Channel in production and by fakes in tests.
type Endpoint interface {
	Read(p []byte) (int, error)
	WriteAll(p []byte) error
	Fd() int
	Close() error
}

// openChannel is a hook for tests (overridden in unit tests).
var openChannel = func(path, config string) (Endpoint, error) { return channel.Open(path, config) }

// Interface is the host-side endpoint of the RCP link. It is single-threaded
// and caller-driven: no goroutines or timers run inside it, the channel is
// read only when the caller invokes Read, and callbacks fire synchronously
// before Read returns. Callers serialize all methods themselves.
type Interface struct {
	ep       Endpoint
	dec      *hdlc.Decoder
	rxBuf    []byte
	txBuf    []byte
	decoding bool
}

// New returns an interface delivering decoded frames and decode errors to h.
// The interface starts uninitialized; Init opens the channel.
func New(h hdlc.FrameHandler) *Interface {
	return &Interface{
		dec:   hdlc.NewDecoder(h),
		rxBuf: make([]byte, hdlc.MaxFrameSize),
		txBuf: make([]byte, hdlc.MaxEncodedLen(hdlc.MaxFrameSize)),
	}
}

// Init opens the channel at radioPath (see channel.Parse for the path
// grammar) and makes the interface ready for I/O. Init on an initialized
// interface fails with ErrAlreadyInit and has no side effects.
func (i *Interface) Init(radioPath, radioConfig string) error {
	if i.ep != nil {
		return ErrAlreadyInit
	}
	ep, err := openChannel(radioPath, radioConfig)
	if err != nil {
		return err
	}
	i.ep = ep
	i.dec.Reset()
	return nil
}

// Deinit closes the channel. It is idempotent, and the interface may be
// initialized again afterwards.
func (i *Interface) Deinit() {
	if i.ep == nil {
		return
	}
	_ = i.ep.Close()
	i.ep = nil
}

// Read performs one channel read and feeds whatever arrived through the
// decoder. Frame and error callbacks fire synchronously before Read returns;
// re-entering Read from such a callback fails with ErrBusy. A read with no
// pending bytes is a no-op. io.EOF means the RCP side went away.
func (i *Interface) Read() error {
	if i.ep == nil {
		return ErrNotInit
	}
	if i.decoding {
		return ErrBusy
	}
	n, err := i.ep.Read(i.rxBuf)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	i.decoding = true
	defer func() { i.decoding = false }()
	i.dec.Decode(i.rxBuf[:n])
	return nil
}

// ProcessReadData feeds externally captured bytes through the decoder,
// bypassing the channel. Simulation harnesses that drive time themselves use
// this entry; the decode state machine is the same one Read drives.
func (i *Interface) ProcessReadData(data []byte) error {
	if i.ep == nil {
		return ErrNotInit
	}
	if i.decoding {
		return ErrBusy
	}
	i.decoding = true
	defer func() { i.decoding = false }()
	i.dec.Decode(data)
	return nil
}

// SendFrame encodes payload and writes the whole encoded frame to the
// channel, looping over short writes. Payloads over hdlc.MaxFrameSize fail
// with hdlc.ErrFrameTooLarge before anything reaches the channel.
// Irrecoverable channel errors wrap ErrWrite; there is no retry and no
// reconnect.
func (i *Interface) SendFrame(payload []byte) error {
	if i.ep == nil {
		return ErrNotInit
	}
	n, err := hdlc.Encode(i.txBuf, payload)
	if err != nil {
		return err
	}
	if err := i.ep.WriteAll(i.txBuf[:n]); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Fd exposes the channel's pollable descriptor for external event loops, or
// -1 when the interface is not initialized.
func (i *Interface) Fd() int {
	if i.ep == nil {
		return -1
	}
	return i.ep.Fd()
}

// IsDecoding reports whether a decode pass is running, i.e. the caller is
// currently inside a delivery callback.
func (i *Interface) IsDecoding() bool { return i.decoding }
