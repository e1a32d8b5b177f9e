package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
	"github.com/wpanio/go-rcp-bridge/internal/hub"
	"github.com/wpanio/go-rcp-bridge/internal/metrics"
	"github.com/wpanio/go-rcp-bridge/internal/rcp"
)

// connFrames receives decode results for a single client connection.
// Good frames go to the radio backend; malformed ones are counted and the
// decoder resyncs on the next flag, so a corrupted frame never costs the
// client its connection.
type connFrames struct {
	s      *Server
	logger *slog.Logger
}

func (cf *connFrames) HandleFrame(frame []byte) {
	s := cf.s
	if s.frameFilter != nil && !s.frameFilter(frame) {
		return
	}
	metrics.IncTCPRx()
	if err := s.Send(frame); err != nil {
		if errors.Is(err, rcp.ErrTxOverflow) {
			s.totalBackendOverflow.Add(1)
			cf.logger.Debug("radio_overflow_drop", "len", len(frame))
		} else {
			wrap := fmt.Errorf("%w: %v", ErrRadioTx, err)
			s.setError(wrap)
			s.totalBackendErrors.Add(1)
			cf.logger.Error("radio_tx_error", "error", wrap, "len", len(frame))
		}
	}
}

func (cf *connFrames) HandleError(err error, frame []byte) {
	metrics.IncMalformed()
	cf.logger.Debug("client_frame_malformed", "error", err, "len", len(frame))
}

func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		dec := hdlc.NewDecoder(&connFrames{s: s, logger: logger})
		buf := make([]byte, s.readBufSize)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			n, err := conn.Read(buf)
			if n > 0 {
				dec.Decode(buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
