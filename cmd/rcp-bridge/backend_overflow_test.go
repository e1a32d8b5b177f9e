package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/wpanio/go-rcp-bridge/internal/hdlc"
	"github.com/wpanio/go-rcp-bridge/internal/hub"
	"github.com/wpanio/go-rcp-bridge/internal/metrics"
	"github.com/wpanio/go-rcp-bridge/internal/rcp"
)

// blockingRadio simulates a wedged radio link to force TX queue overflow.
type blockingRadio struct {
	fakeRadio
	block chan struct{}
}

func (r *blockingRadio) Read() error {
	time.Sleep(5 * time.Millisecond)
	return io.EOF
}

func (r *blockingRadio) SendFrame(p []byte) error {
	<-r.block
	return nil
}

func TestRadioBackendTxOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	br := &blockingRadio{block: make(chan struct{})}
	newRadio = func(h hdlc.FrameHandler) radio { return br }
	defer restoreRadioHook()
	beforeErrs := metrics.Snap().Errors

	h := hub.New()
	cfg := &appConfig{radioPath: "fake", radioConfig: "115200"}
	var wg sync.WaitGroup
	send, cleanup, err := initRadioBackend(ctx, cfg, h, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initRadioBackend: %v", err)
	}
	defer cleanup()
	// Unblock the radio before cleanup so the TX worker can drain and exit.
	defer close(br.block)

	// Fill buffer; the worker picks up one frame and blocks inside SendFrame,
	// so the queue fills and further sends overflow.
	var overflowErr error
	for i := 0; i < txQueueSize+2; i++ {
		err := send([]byte{byte(i)})
		if err != nil && overflowErr == nil {
			overflowErr = err
		}
	}
	if overflowErr == nil {
		t.Fatalf("expected at least one overflow error")
	}
	if !errors.Is(overflowErr, rcp.ErrTxOverflow) {
		t.Fatalf("expected ErrTxOverflow, got %v", overflowErr)
	}
	afterErrs := metrics.Snap().Errors
	if afterErrs == beforeErrs {
		t.Fatalf("expected error metric increment on overflow")
	}
}
