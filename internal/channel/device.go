//go:build linux

package channel

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Channel is one open byte-stream endpoint and its file descriptor. It
// supports one concurrent reader plus one concurrent writer; Close must not
// race with either.
type Channel struct {
	fd   int
	kind Kind
	path string
	cmd  *exec.Cmd // exec kind: the spawned RCP process
}

const defaultBaud = 115200

// Open opens the endpoint selected by path (see Parse for the grammar).
// config depends on the kind: a decimal baud rate for devices (default
// 115200), extra argv for spawned subprocesses, empty for sockets. Open
// fails immediately when the endpoint cannot be opened; it never retries.
func Open(path, config string) (*Channel, error) {
	kind, target, err := Parse(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindDevice:
		return openDevice(target, config)
	case KindSocket:
		if config != "" {
			return nil, fmt.Errorf("channel: socket takes no config, got %q: %w", config, ErrInvalidConfig)
		}
		return openSocket(target)
	default:
		return openExec(target, config)
	}
}

func openDevice(path, config string) (*Channel, error) {
	baud := defaultBaud
	if config != "" {
		b, err := strconv.Atoi(config)
		if err != nil {
			return nil, fmt.Errorf("channel: baud %q: %w", config, ErrInvalidConfig)
		}
		baud = b
	}
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("channel: unsupported baud %d: %w", baud, ErrInvalidConfig)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: open %s: %w", path, err)
	}
	if err := configureRaw(fd, speed); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("channel: %s: %w", path, err)
	}
	return &Channel{fd: fd, kind: KindDevice, path: path}, nil
}

func openSocket(path string) (*Channel, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("channel: connect %s: %w", path, err)
	}
	return &Channel{fd: fd, kind: KindSocket, path: path}, nil
}

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// configureRaw puts a terminal descriptor in non-canonical 8N1 mode with
// echo and flow control off.
func configureRaw(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr: %w", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	t.Ispeed = speed
	t.Ospeed = speed
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}
	return nil
}

// Read performs one non-blocking read. A return of 0, nil means no bytes
// were pending; io.EOF means the peer or device went away.
func (c *Channel) Read(p []byte) (int, error) {
	if c.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("channel: read %s: %w", c.path, err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// WriteAll writes p fully, looping over short writes and polling for the
// descriptor to accept more when the kernel buffer is full.
func (c *Channel) WriteAll(p []byte) error {
	if c.fd < 0 {
		return ErrClosed
	}
	for len(p) > 0 {
		n, err := unix.Write(c.fd, p)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				if err := c.waitWritable(); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("channel: write %s: %w", c.path, err)
		}
		p = p[n:]
	}
	return nil
}

func (c *Channel) waitWritable() error {
	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("channel: poll %s: %w", c.path, err)
		}
		return nil
	}
}

// WaitReadable polls fd for input, returning true when bytes are pending and
// false when the timeout elapsed first. Timeouts are rounded to milliseconds.
func WaitReadable(fd int, timeout time.Duration) (bool, error) {
	if fd < 0 {
		return false, ErrClosed
	}
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("channel: poll: %w", err)
		}
		return n > 0, nil
	}
}

// Fd returns the pollable descriptor, or -1 after Close.
func (c *Channel) Fd() int { return c.fd }

// Kind reports how the channel was opened.
func (c *Channel) Kind() Kind { return c.kind }

// Close releases the descriptor and, for the exec kind, reaps the spawned
// process. Closing an already-closed channel is a no-op.
func (c *Channel) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	if c.cmd != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
		c.cmd = nil
	}
	if err != nil {
		return fmt.Errorf("channel: close %s: %w", c.path, err)
	}
	return nil
}
