package server

import (
	"context"
	"net"

	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
)

// BridgeHandshake runs the required TCP hello exchange.
func (s *Server) BridgeHandshake(ctx context.Context, c net.Conn) error {
	return hdlc.Handshake(ctx, c, s.handshakeTimeout)
}
