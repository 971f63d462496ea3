package health

import "sync/atomic"

// readyGate flips to false once graceful shutdown starts so load balancers
// drain traffic before the listener closes.
var readyGate atomic.Bool

func init() {
	readyGate.Store(true)
}

// SetReady toggles the readiness gate.
func SetReady(ready bool) {
	readyGate.Store(ready)
}

// IsReady reports whether the service accepts new traffic.
func IsReady() bool {
	return readyGate.Load()
}
