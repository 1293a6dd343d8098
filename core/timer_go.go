//go:build !tinygo

package core

import "sync/atomic"

var systemMicros atomic.Uint64

// getSystemMicros returns the current system time (regular Go implementation)
func getSystemMicros() uint64 {
	return systemMicros.Load()
}

// setSystemMicros sets the system time (regular Go implementation)
func setSystemMicros(us uint64) {
	systemMicros.Store(us)
}

func loadUint64(p *uint64) uint64 {
	return atomic.LoadUint64(p)
}

func storeUint64(p *uint64, v uint64) {
	atomic.StoreUint64(p, v)
}
