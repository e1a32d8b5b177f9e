package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
	"github.com/wpanio/go-rcp-bridge/internal/hub"
	"github.com/wpanio/go-rcp-bridge/internal/metrics"
)

// startWriter launches the goroutine pushing hub frames to a single client connection.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			if s.Hub != nil {
				s.Hub.Remove(cl)
			}
			s.totalDisconnected.Add(1)
			logger.Info("client_disconnected")
		}()
		t := time.NewTicker(s.flushInterval)
		defer t.Stop()
		batch := make([][]byte, 0, s.batchSize)
		scratch := make([]byte, hdlc.MaxEncodedLen(hdlc.MaxFrameSize))
		var out []byte
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			sent := 0
			out = out[:0]
			for _, fr := range batch {
				n, err := hdlc.Encode(scratch, fr)
				if err != nil {
					// Oversize payloads cannot be framed; drop rather than stall the batch.
					logger.Debug("frame_encode_drop", "error", err, "len", len(fr))
					continue
				}
				out = append(out, scratch[:n]...)
				sent++
			}
			batch = batch[:0]
			if sent == 0 {
				return nil
			}
			if _, err := conn.Write(out); err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return wrap
			}
			metrics.AddTCPTx(sent)
			return nil
		}
		for {
			select {
			case fr := <-cl.Out:
				batch = append(batch, fr)
				if len(batch) >= s.batchSize {
					if err := flush(); err != nil {
						return
					}
				}
			case <-t.C:
				if err := flush(); err != nil {
					return
				}
			case <-cl.Closed:
				_ = flush()
				return
			case <-ctxDone:
				_ = flush()
				return
			}
		}
	}()
}
