package transport

// FrameSink is a generic transmission target for decoded frame payloads.
// The synchronous radio interface and the buffered writer layered on it both
// satisfy FrameSink, so callers can swap one for the other without code
// changes. Implementations must not retain the payload past the call.
type FrameSink interface {
	SendFrame(frame []byte) error
}

// Compile-time assertion that the async writer satisfies the sink.
var _ FrameSink = (*AsyncTx)(nil)
