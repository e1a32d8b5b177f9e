// Command hdlc-dump prints every frame crossing a serial link. It is a
// cabling and baud-rate debugging aid: point it at the port an RCP is
// attached to and watch the decoded traffic. The tool never writes to the
// port.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tarm/serial"

	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
	"github.com/wpanio/go-rcp-bridge/internal/logging"
)

// dumpFrames renders decode results, one line per frame or error.
type dumpFrames struct {
	out        io.Writer
	showErrors bool
	frames     uint64
	errs       uint64
}

func (d *dumpFrames) HandleFrame(frame []byte) {
	d.frames++
	fmt.Fprintf(d.out, "frame %6d len=%-4d % X\n", d.frames, len(frame), frame)
}

func (d *dumpFrames) HandleError(err error, frame []byte) {
	d.errs++
	if d.showErrors {
		fmt.Fprintf(d.out, "error %6d %v (%d bytes dropped)\n", d.errs, err, len(frame))
	}
}

func main() {
	dev := flag.String("serial", "/dev/ttyACM0", "serial device to dump")
	baud := flag.Int("baud", 115200, "baud rate")
	readTO := flag.Duration("read-timeout", 200*time.Millisecond, "serial read timeout, bounds exit latency")
	showErrors := flag.Bool("show-errors", false, "print decode errors as well")
	flag.Parse()

	l := logging.L()
	if *readTO <= 0 {
		l.Error("bad_read_timeout", "value", *readTO)
		os.Exit(2)
	}
	port, err := serial.OpenPort(&serial.Config{Name: *dev, Baud: *baud, ReadTimeout: *readTO})
	if err != nil {
		l.Error("serial_open_error", "device", *dev, "error", err)
		os.Exit(1)
	}
	defer port.Close()
	fmt.Printf("dumping %s at %d baud, ^C to stop\n", *dev, *baud)

	sink := &dumpFrames{out: os.Stdout, showErrors: *showErrors}
	dec := hdlc.NewDecoder(sink)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			select {
			case <-stop:
				return
			default:
			}
			n, err := port.Read(buf)
			if n > 0 {
				dec.Decode(buf[:n])
			}
			if err != nil && err != io.EOF { // EOF is the read timeout tick
				l.Error("serial_read_error", "error", err)
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		close(stop)
		<-done
	case <-done:
	}
	fmt.Printf("%d frames, %d decode errors\n", sink.frames, sink.errs)
}
