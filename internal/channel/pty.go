//go:build linux

package channel

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// openExec spawns the program on the slave side of a new pseudo-terminal and
// uses the master as the channel. This is how simulated RCP processes are
// attached; real hardware never takes this path. config is split into extra
// argv for the program.
func openExec(path, config string) (*Channel, error) {
	master, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: open ptmx: %w", err)
	}
	if err := unix.IoctlSetPointerInt(master, unix.TIOCSPTLCK, 0); err != nil {
		_ = unix.Close(master)
		return nil, fmt.Errorf("channel: unlockpt: %w", err)
	}
	ptn, err := unix.IoctlGetInt(master, unix.TIOCGPTN)
	if err != nil {
		_ = unix.Close(master)
		return nil, fmt.Errorf("channel: ptsname: %w", err)
	}
	slavePath := fmt.Sprintf("/dev/pts/%d", ptn)
	slave, err := os.OpenFile(slavePath, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		_ = unix.Close(master)
		return nil, fmt.Errorf("channel: open %s: %w", slavePath, err)
	}
	// Raw mode on the slave so the child sees a clean byte pipe.
	if err := configureRaw(int(slave.Fd()), unix.B115200); err != nil {
		_ = slave.Close()
		_ = unix.Close(master)
		return nil, fmt.Errorf("channel: %s: %w", slavePath, err)
	}

	cmd := exec.Command(path, strings.Fields(config)...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	if err := cmd.Start(); err != nil {
		_ = slave.Close()
		_ = unix.Close(master)
		return nil, fmt.Errorf("channel: spawn %s: %w", path, err)
	}
	// The child holds the slave now; the parent keeps only the master.
	_ = slave.Close()
	return &Channel{fd: master, kind: KindExec, path: path, cmd: cmd}, nil
}
