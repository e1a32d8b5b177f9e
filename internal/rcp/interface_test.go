package rcp

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
)

// fakeEndpoint implements Endpoint for tests.
type fakeEndpoint struct {
	reads    [][]byte // chunks handed out one per Read call
	idx      int
	wrote    bytes.Buffer
	readErr  error // returned once the chunks are exhausted, if set
	writeErr error
	fd       int
	closed   int
}

func (f *fakeEndpoint) Read(p []byte) (int, error) {
	if f.idx < len(f.reads) {
		chunk := f.reads[f.idx]
		f.idx++
		return copy(p, chunk), nil
	}
	if f.readErr != nil {
		return 0, f.readErr
	}
	return 0, nil // nothing pending
}

func (f *fakeEndpoint) WriteAll(p []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.wrote.Write(p)
	return nil
}

func (f *fakeEndpoint) Fd() int      { return f.fd }
func (f *fakeEndpoint) Close() error { f.closed++; return nil }

// frameSink implements hdlc.FrameHandler and copies what it receives.
type frameSink struct {
	frames [][]byte
	errs   []error
}

func (s *frameSink) HandleFrame(frame []byte) {
	s.frames = append(s.frames, append([]byte(nil), frame...))
}

func (s *frameSink) HandleError(err error, partial []byte) {
	s.errs = append(s.errs, err)
}

// hookEndpoint routes openChannel to ep for the duration of the test.
func hookEndpoint(t *testing.T, ep *fakeEndpoint) *int {
	t.Helper()
	orig := openChannel
	opens := 0
	openChannel = func(path, config string) (Endpoint, error) {
		opens++
		return ep, nil
	}
	t.Cleanup(func() { openChannel = orig })
	return &opens
}

func encodeFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	dst := make([]byte, hdlc.MaxEncodedLen(len(payload)))
	n, err := hdlc.Encode(dst, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return dst[:n]
}

func TestInterface_Lifecycle(t *testing.T) {
	ep := &fakeEndpoint{fd: 7}
	opens := hookEndpoint(t, ep)

	var sink frameSink
	iface := New(&sink)

	if got := iface.Fd(); got != -1 {
		t.Fatalf("Fd before Init = %d, want -1", got)
	}
	if err := iface.Read(); !errors.Is(err, ErrNotInit) {
		t.Fatalf("Read before Init err = %v, want ErrNotInit", err)
	}
	if err := iface.SendFrame([]byte{0x01}); !errors.Is(err, ErrNotInit) {
		t.Fatalf("SendFrame before Init err = %v, want ErrNotInit", err)
	}
	if err := iface.ProcessReadData([]byte{0x7E}); !errors.Is(err, ErrNotInit) {
		t.Fatalf("ProcessReadData before Init err = %v, want ErrNotInit", err)
	}

	if err := iface.Init("uart:///dev/ttyACM0", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := iface.Fd(); got != 7 {
		t.Fatalf("Fd = %d, want 7", got)
	}
	if err := iface.Init("uart:///dev/ttyACM0", ""); !errors.Is(err, ErrAlreadyInit) {
		t.Fatalf("second Init err = %v, want ErrAlreadyInit", err)
	}
	if *opens != 1 {
		t.Fatalf("channel opened %d times, want 1", *opens)
	}

	iface.Deinit()
	iface.Deinit()
	if ep.closed != 1 {
		t.Fatalf("channel closed %d times, want 1", ep.closed)
	}
	if got := iface.Fd(); got != -1 {
		t.Fatalf("Fd after Deinit = %d, want -1", got)
	}

	// The interface is reusable after Deinit.
	if err := iface.Init("uart:///dev/ttyACM0", ""); err != nil {
		t.Fatalf("re-Init: %v", err)
	}
	if *opens != 2 {
		t.Fatalf("channel opened %d times, want 2", *opens)
	}
}

func TestInterface_ReadDeliversFrames(t *testing.T) {
	payload := []byte{0x01, 0x7E, 0x7D, 0x02}
	wire := encodeFrame(t, payload)

	// Two reads split the frame mid-escape; a third finds nothing pending.
	ep := &fakeEndpoint{reads: [][]byte{wire[:3], wire[3:]}}
	hookEndpoint(t, ep)

	var sink frameSink
	iface := New(&sink)
	if err := iface.Init("fake", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := iface.Read(); err != nil {
		t.Fatalf("Read 1: %v", err)
	}
	if len(sink.frames) != 0 {
		t.Fatalf("frame delivered from half a wire frame")
	}
	if err := iface.Read(); err != nil {
		t.Fatalf("Read 2: %v", err)
	}
	if err := iface.Read(); err != nil {
		t.Fatalf("empty Read: %v", err)
	}

	if len(sink.errs) != 0 {
		t.Fatalf("decode errors: %v", sink.errs)
	}
	if len(sink.frames) != 1 || !bytes.Equal(sink.frames[0], payload) {
		t.Fatalf("frames = % X, want % X", sink.frames, payload)
	}
	if iface.IsDecoding() {
		t.Fatal("IsDecoding true outside Read")
	}
}

func TestInterface_ReadSurfacesChannelErrors(t *testing.T) {
	ep := &fakeEndpoint{readErr: io.EOF}
	hookEndpoint(t, ep)

	var sink frameSink
	iface := New(&sink)
	if err := iface.Init("fake", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := iface.Read(); !errors.Is(err, io.EOF) {
		t.Fatalf("Read err = %v, want io.EOF", err)
	}
}

func TestInterface_ProcessReadData(t *testing.T) {
	payload := []byte("0123456789")
	wire := encodeFrame(t, payload)

	// Half the frame arrives via the channel, half is injected directly:
	// both entries drive the same decode state machine.
	ep := &fakeEndpoint{reads: [][]byte{wire[:4]}}
	hookEndpoint(t, ep)

	var sink frameSink
	iface := New(&sink)
	if err := iface.Init("fake", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := iface.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := iface.ProcessReadData(wire[4:]); err != nil {
		t.Fatalf("ProcessReadData: %v", err)
	}
	if len(sink.frames) != 1 || !bytes.Equal(sink.frames[0], payload) {
		t.Fatalf("frames = % X, want % X", sink.frames, payload)
	}
}

// reentrantHandler calls back into the interface from inside a delivery.
type reentrantHandler struct {
	iface    *Interface
	readErr  error
	procErr  error
	sendErr  error
	decoding bool
	fired    bool
}

func (h *reentrantHandler) HandleFrame(frame []byte) {
	h.fired = true
	h.decoding = h.iface.IsDecoding()
	h.readErr = h.iface.Read()
	h.procErr = h.iface.ProcessReadData([]byte{0x7E})
	h.sendErr = h.iface.SendFrame([]byte{0xAB})
}

func (h *reentrantHandler) HandleError(error, []byte) {}

func TestInterface_ReentrantDecodeRejected(t *testing.T) {
	wire := encodeFrame(t, []byte{0x42})
	ep := &fakeEndpoint{reads: [][]byte{wire}}
	hookEndpoint(t, ep)

	h := &reentrantHandler{}
	iface := New(h)
	h.iface = iface
	if err := iface.Init("fake", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := iface.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !h.fired {
		t.Fatal("delivery callback never fired")
	}
	if !h.decoding {
		t.Fatal("IsDecoding false inside delivery callback")
	}
	if !errors.Is(h.readErr, ErrBusy) {
		t.Fatalf("re-entrant Read err = %v, want ErrBusy", h.readErr)
	}
	if !errors.Is(h.procErr, ErrBusy) {
		t.Fatalf("re-entrant ProcessReadData err = %v, want ErrBusy", h.procErr)
	}
	// Sending a reply from a callback is allowed; only decoding is guarded.
	if h.sendErr != nil {
		t.Fatalf("SendFrame from callback err = %v", h.sendErr)
	}
	if iface.IsDecoding() {
		t.Fatal("IsDecoding still true after Read returned")
	}
}

func TestInterface_SendFrame(t *testing.T) {
	ep := &fakeEndpoint{}
	hookEndpoint(t, ep)

	var sink frameSink
	iface := New(&sink)
	if err := iface.Init("fake", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	payload := []byte{0x01, 0x7E, 0x7D, 0x02}
	if err := iface.SendFrame(payload); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	// What went over the channel must decode back to the payload.
	var peer frameSink
	hdlc.NewDecoder(&peer).Decode(ep.wrote.Bytes())
	if len(peer.frames) != 1 || !bytes.Equal(peer.frames[0], payload) {
		t.Fatalf("wire % X decoded to % X", ep.wrote.Bytes(), peer.frames)
	}
}

func TestInterface_SendFrameOversize(t *testing.T) {
	ep := &fakeEndpoint{}
	hookEndpoint(t, ep)

	var sink frameSink
	iface := New(&sink)
	if err := iface.Init("fake", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := iface.SendFrame(make([]byte, hdlc.MaxFrameSize+1))
	if !errors.Is(err, hdlc.ErrFrameTooLarge) {
		t.Fatalf("err = %v, want hdlc.ErrFrameTooLarge", err)
	}
	if ep.wrote.Len() != 0 {
		t.Fatalf("channel received %d bytes for rejected payload", ep.wrote.Len())
	}
}

func TestInterface_SendFrameWriteError(t *testing.T) {
	ep := &fakeEndpoint{writeErr: errors.New("broken pipe")}
	hookEndpoint(t, ep)

	var sink frameSink
	iface := New(&sink)
	if err := iface.Init("fake", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := iface.SendFrame([]byte{0x01}); !errors.Is(err, ErrWrite) {
		t.Fatalf("err = %v, want ErrWrite", err)
	}
}

func TestInterface_InitPropagatesOpenError(t *testing.T) {
	orig := openChannel
	openErr := errors.New("no such device")
	openChannel = func(path, config string) (Endpoint, error) { return nil, openErr }
	t.Cleanup(func() { openChannel = orig })

	var sink frameSink
	iface := New(&sink)
	if err := iface.Init("uart:///dev/ttyBAD", ""); !errors.Is(err, openErr) {
		t.Fatalf("Init err = %v, want open error", err)
	}
	if got := iface.Fd(); got != -1 {
		t.Fatalf("Fd after failed Init = %d, want -1", got)
	}
}
