package rcp

import (
	"context"

	"github.com/wpanio/go-rcp-bridge/internal/logging"
	"github.com/wpanio/go-rcp-bridge/internal/metrics"
	"github.com/wpanio/go-rcp-bridge/internal/transport"
)

// TXWriter funnels all radio-bound writes through a single goroutine. The
// interface itself is not safe for concurrent SendFrame, so everything that
// wants to transmit (TCP readers in particular) goes through here.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a radio TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, dev transport.FrameSink, buf int) *TXWriter {
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrRadioWrite)
			logging.L().Error("radio_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncRadioTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrRadioTxOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, dev.SendFrame, hooks)}
}

// SendFrame queues a payload for asynchronous write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendFrame(frame []byte) error { return w.base.SendFrame(frame) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }

// Compile-time checks that both the synchronous interface and the buffered
// writer can stand in wherever a sink is expected.
var (
	_ transport.FrameSink = (*Interface)(nil)
	_ transport.FrameSink = (*TXWriter)(nil)
)
