// Package feed defines the narrow contract between the upstream tick
// source and the bridge core, and the producer-side normalizer that
// turns raw callbacks into queue entries.
//
// Upstream vendor APIs expose dozens of callbacks; collaborators adapt
// that surface down to the handful of events the bridge consumes.
package feed

// ConnectionState is reported by the upstream collaborator.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateReconnected // fresh session after a drop; local state is stale
)

// TickSource receives normalized upstream events. Implementations must
// treat every method as latency-critical: each call runs synchronously
// on the source's read goroutine.
type TickSource interface {
	// OnBidAsk delivers a quote update for a subscribed handle.
	OnBidAsk(handle int32, tsMillis int64, bid, ask float64, bidSize, askSize int32)
	// OnAllLast delivers a trade print for a subscribed handle.
	OnAllLast(handle int32, tsMillis int64, price float64, size int32, pastLimit bool)
	// OnBar delivers one aggregated bar for a subscribed handle.
	OnBar(handle int32, tsMillis int64, open, high, low, close, volume float64)
	// OnConnectionState reports session transitions.
	OnConnectionState(state ConnectionState)
}
