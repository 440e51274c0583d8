package monitor

import "sync/atomic"

// Counters are the pipeline's hot-path metrics. Both worker goroutines
// get a handle to one shared instance; increments are single atomic adds
// so the producer side stays lock- and allocation-free. Prometheus reads
// them lazily through the Monitor, never on the event path.
type Counters struct {
	DroppedOnFull     atomic.Uint64 // transfer queue full, update dropped
	RejectedMalformed atomic.Uint64 // NaN/Inf/negative price, update rejected
	UnknownHandle     atomic.Uint64 // callback for a handle the directory does not know
	Published         atomic.Uint64
	PublishFailures   atomic.Uint64
}

// Snapshot is a point-in-time copy for logs and tests.
type Snapshot struct {
	DroppedOnFull     uint64
	RejectedMalformed uint64
	UnknownHandle     uint64
	Published         uint64
	PublishFailures   uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DroppedOnFull:     c.DroppedOnFull.Load(),
		RejectedMalformed: c.RejectedMalformed.Load(),
		UnknownHandle:     c.UnknownHandle.Load(),
		Published:         c.Published.Load(),
		PublishFailures:   c.PublishFailures.Load(),
	}
}
