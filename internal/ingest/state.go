package ingest

import "sync/atomic"

// ConnState tracks the bus connection through its lifecycle. The worker is
// the only writer; readers (health endpoint, metrics) observe it lock-free.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribed
	StateDraining
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

type connStatus struct {
	v atomic.Int32
}

func (c *connStatus) set(s ConnState) { c.v.Store(int32(s)) }
func (c *connStatus) get() ConnState  { return ConnState(c.v.Load()) }
