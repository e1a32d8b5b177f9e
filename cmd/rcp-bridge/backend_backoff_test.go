package main

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
	"github.com/wpanio/go-rcp-bridge/internal/hub"
)

// errRadio always fails Read with a transient error to trigger backoff.
type errRadio struct{ fakeRadio }

func (e *errRadio) Read() error { return io.ErrNoProgress }

func TestRadioBackendBackoffProgression(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	newRadio = func(h hdlc.FrameHandler) radio { return &errRadio{} }
	defer restoreRadioHook()

	var mu sync.Mutex
	var seen []time.Duration
	sleepFn = func(d time.Duration) {
		mu.Lock()
		if len(seen) < 6 { // capture first few entries
			seen = append(seen, d)
			if len(seen) == 6 {
				cancel()
			}
		}
		mu.Unlock()
	}
	defer func() { sleepFn = time.Sleep }()

	h := hub.New()
	cfg := &appConfig{radioPath: "fake", radioConfig: "115200"}
	var wg sync.WaitGroup
	_, cleanup, err := initRadioBackend(ctx, cfg, h, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initRadioBackend: %v", err)
	}
	cleanup()
	wg.Wait()

	if len(seen) < 3 {
		t.Fatalf("expected at least 3 backoff samples, got %d", len(seen))
	}
	// Validate non-decreasing, starts at min, and never exceeds max.
	prev := rxBackoffMin / 4 // allow first comparison
	for i, d := range seen {
		if d < prev {
			t.Fatalf("backoff decreased at %d: prev=%v cur=%v", i, prev, d)
		}
		if d > rxBackoffMax {
			t.Fatalf("backoff exceeded max at %d: %v > %v", i, d, rxBackoffMax)
		}
		prev = d
	}
	if seen[0] != rxBackoffMin {
		t.Fatalf("expected first backoff %v got %v", rxBackoffMin, seen[0])
	}
}
