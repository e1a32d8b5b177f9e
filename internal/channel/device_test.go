//go:build linux

package channel

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestOpen_BadConfig(t *testing.T) {
	if _, err := Open("uart:///dev/null", "fast"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("non-numeric baud err = %v, want ErrInvalidConfig", err)
	}
	if _, err := Open("uart:///dev/null", "12345"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unsupported baud err = %v, want ErrInvalidConfig", err)
	}

	sock := filepath.Join(t.TempDir(), "rcp.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	if _, err := Open("unix://"+sock, "115200"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("socket config err = %v, want ErrInvalidConfig", err)
	}
}

func TestOpen_NotATerminal(t *testing.T) {
	// /dev/null is a character device but not a terminal, so the raw-mode
	// setup must fail cleanly.
	if _, err := Open("/dev/null", ""); err == nil {
		t.Fatal("Open(/dev/null) succeeded, want termios error")
	}
}

// readDeadline polls the descriptor and reads until want bytes arrived or
// the deadline passes.
func readDeadline(t *testing.T, c *Channel, want int, deadline time.Duration) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 256)
	end := time.Now().Add(deadline)
	for len(got) < want {
		if time.Now().After(end) {
			t.Fatalf("timed out with % X (want %d bytes)", got, want)
		}
		pfd := []unix.PollFd{{Fd: int32(c.Fd()), Events: unix.POLLIN}}
		if _, err := unix.Poll(pfd, 100); err != nil && err != unix.EINTR {
			t.Fatalf("poll: %v", err)
		}
		n, err := c.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	return got
}

func TestChannel_SocketLoopback(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "rcp.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c, err := Open(sock, "") // bare path, stat says socket
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()
	if c.Kind() != KindSocket {
		t.Fatalf("kind = %v, want socket", c.Kind())
	}
	if c.Fd() < 0 {
		t.Fatalf("fd = %d, want >= 0", c.Fd())
	}

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
	defer peer.Close()

	// Channel -> peer.
	msg := []byte{0x7E, 0x01, 0x02, 0x7E}
	if err := c.WriteAll(msg); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	buf := make([]byte, len(msg))
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := peer.Read(buf); err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if !bytes.Equal(buf, msg) {
		t.Fatalf("peer got % X, want % X", buf, msg)
	}

	// Peer -> channel.
	if _, err := peer.Write([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	if got := readDeadline(t, c, 2, 2*time.Second); !bytes.Equal(got, []byte{0xAA, 0xBB}) {
		t.Fatalf("channel got % X", got)
	}

	// Empty read on a drained channel is not an error.
	if n, err := c.Read(buf); n != 0 || err != nil {
		t.Fatalf("drained read = %d, %v", n, err)
	}
}

func TestChannel_CloseIdempotent(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "rcp.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		if conn, err := ln.Accept(); err == nil {
			conn.Close()
		}
	}()

	c, err := Open("unix://"+sock, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.Fd() != -1 {
		t.Fatalf("fd after close = %d, want -1", c.Fd())
	}
	if err := c.WriteAll([]byte{0x01}); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close err = %v, want ErrClosed", err)
	}
	if _, err := c.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("read after close err = %v, want ErrClosed", err)
	}
}

func TestChannel_ExecEcho(t *testing.T) {
	if _, err := os.Stat("/bin/cat"); err != nil {
		t.Skip("/bin/cat not available")
	}

	c, err := Open("exec:///bin/cat", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()
	if c.Kind() != KindExec {
		t.Fatalf("kind = %v, want exec", c.Kind())
	}

	// The pty is raw, so the only bytes coming back are cat's own output.
	msg := []byte("ping")
	if err := c.WriteAll(msg); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if got := readDeadline(t, c, len(msg), 5*time.Second); !bytes.Equal(got, msg) {
		t.Fatalf("echo got % X, want % X", got, msg)
	}
}

func TestOpen_MissingExec(t *testing.T) {
	_, err := Open("exec://"+filepath.Join(t.TempDir(), "no-such-sim"), "")
	if err == nil {
		t.Fatal("Open of missing executable succeeded")
	}
}
