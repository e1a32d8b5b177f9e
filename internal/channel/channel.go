// Package channel owns the byte-stream endpoint toward the radio
// co-processor: a raw serial device, a local stream socket, or a spawned
// subprocess on a pseudo-terminal for simulated RCPs.
package channel

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind selects how a radio path is opened.
type Kind uint8

const (
	KindDevice Kind = iota // raw serial / character device
	KindSocket             // local stream socket
	KindExec               // subprocess on a pseudo-terminal (simulation only)
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindSocket:
		return "socket"
	case KindExec:
		return "exec"
	}
	return "unknown"
}

var (
	// ErrClosed is returned for I/O on a closed channel.
	ErrClosed = errors.New("channel: closed")

	// ErrInvalidPath is returned for a radio path that names neither a
	// character device, a socket, nor an executable.
	ErrInvalidPath = errors.New("channel: unrecognized radio path")

	// ErrInvalidConfig is returned for a radio config the selected kind
	// cannot use.
	ErrInvalidConfig = errors.New("channel: invalid radio config")
)

// Parse classifies a radio path and returns the kind together with the
// filesystem path to open. The uart://, unix:// and exec:// schemes pin the
// kind explicitly; a bare path is classified by what the filesystem says it
// is. A path that does not exist fails with the stat error.
func Parse(path string) (Kind, string, error) {
	switch {
	case strings.HasPrefix(path, "uart://"):
		return KindDevice, strings.TrimPrefix(path, "uart://"), nil
	case strings.HasPrefix(path, "unix://"):
		return KindSocket, strings.TrimPrefix(path, "unix://"), nil
	case strings.HasPrefix(path, "exec://"):
		return KindExec, strings.TrimPrefix(path, "exec://"), nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, "", fmt.Errorf("channel: stat %s: %w", path, err)
	}
	mode := fi.Mode()
	switch {
	case mode&os.ModeCharDevice != 0:
		return KindDevice, path, nil
	case mode&os.ModeSocket != 0:
		return KindSocket, path, nil
	case mode.IsRegular() && mode.Perm()&0o111 != 0:
		return KindExec, path, nil
	}
	return 0, "", fmt.Errorf("channel: %s: %w", path, ErrInvalidPath)
}
