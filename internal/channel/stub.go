//go:build !linux

package channel

import (
	"fmt"
	"runtime"
	"time"
)

// Channel is implemented on linux; this stub keeps importers compiling on
// other platforms.
type Channel struct{}

var errUnsupported = fmt.Errorf("channel: not supported on %s", runtime.GOOS)

func Open(path, config string) (*Channel, error) { return nil, errUnsupported }

func WaitReadable(fd int, timeout time.Duration) (bool, error) { return false, errUnsupported }

func (c *Channel) Read(p []byte) (int, error) { return 0, errUnsupported }
func (c *Channel) WriteAll(p []byte) error    { return errUnsupported }
func (c *Channel) Fd() int                    { return -1 }
func (c *Channel) Kind() Kind                 { return KindDevice }
func (c *Channel) Close() error               { return nil }
