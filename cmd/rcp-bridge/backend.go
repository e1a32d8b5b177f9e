package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wpanio/go-rcp-bridge/internal/channel"
	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
	"github.com/wpanio/go-rcp-bridge/internal/hub"
	"github.com/wpanio/go-rcp-bridge/internal/metrics"
	"github.com/wpanio/go-rcp-bridge/internal/rcp"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// radio is the slice of the RCP interface the backend drives.
type radio interface {
	Init(radioPath, radioConfig string) error
	Deinit()
	Read() error
	SendFrame(payload []byte) error
	Fd() int
}

// newRadio is a hook for tests (overridden in unit tests).
var newRadio = func(h hdlc.FrameHandler) radio { return rcp.New(h) }

// radioFrames feeds frames decoded from the radio into the hub. Decode errors
// are counted per kind; the decoder resyncs on its own.
type radioFrames struct {
	h *hub.Hub
	l *slog.Logger
}

func (rf *radioFrames) HandleFrame(frame []byte) {
	metrics.IncRadioRx()
	rf.h.Broadcast(frame)
}

func (rf *radioFrames) HandleError(err error, frame []byte) {
	switch {
	case errors.Is(err, hdlc.ErrChecksum):
		metrics.IncChecksumErr()
	case errors.Is(err, hdlc.ErrOverflow):
		metrics.IncOverflowErr()
	}
	rf.l.Debug("radio_frame_malformed", "error", err, "len", len(frame))
}

// initRadioBackend opens the radio link, starts the RX pump and returns a
// frame sender and cleanup. It returns an error instead of exiting the process
// to allow graceful handling by the caller. Cancel ctx before calling cleanup,
// otherwise cleanup blocks until the pump exits on its own.
func initRadioBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func([]byte) error, func(), error) {
	dev := newRadio(&radioFrames{h: h, l: l})
	if err := dev.Init(cfg.radioPath, cfg.radioConfig); err != nil {
		return nil, func() {}, fmt.Errorf("open radio: %w", err)
	}
	l.Info("radio_open", "path", cfg.radioPath, "config", cfg.radioConfig)
	w := rcp.NewTXWriter(ctx, dev, txQueueSize)
	var pump sync.WaitGroup
	pump.Add(1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer pump.Done()
		defer l.Info("radio_rx_end")
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if fd := dev.Fd(); fd >= 0 {
				ready, err := channel.WaitReadable(fd, pollInterval)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					metrics.IncError(metrics.ErrRadioRead)
					l.Error("radio_poll_error", "error", err)
					return
				}
				if !ready {
					continue
				}
			}
			if err := dev.Read(); err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				if errors.Is(err, io.EOF) || errors.Is(err, channel.ErrClosed) || errors.Is(err, rcp.ErrNotInit) {
					metrics.IncError(metrics.ErrRadioRead)
					l.Error("radio_closed", "error", err)
					return // device removed or peer went away
				}
				metrics.IncError(metrics.ErrRadioRead)
				l.Warn("radio_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
				continue
			}
			backoff = rxBackoffMin
		}
	}()
	// The interface is not locked; nothing may touch it until both the TX
	// worker and the pump are done.
	cleanup := func() {
		w.Close()
		pump.Wait()
		dev.Deinit()
	}
	return w.SendFrame, cleanup, nil
}
