package main

import "time"

const (
	// txQueueSize bounds the outbound frame queue toward the radio. At the
	// 2 KiB frame limit this is at most 2 MiB of buffered payload.
	txQueueSize = 1024

	// pollInterval is the RX poll slice. It bounds how long shutdown waits
	// for the pump to notice a cancelled context on an idle link.
	pollInterval = 500 * time.Millisecond

	// Backoff window for transient radio read errors.
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond
)
