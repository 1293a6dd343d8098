//go:build tinygo

package core

// Cortex-M0+ has no 64-bit atomics, so 64-bit values are guarded by masking
// interrupts instead.

var systemMicrosValue uint64

// getSystemMicros returns the current system time
func getSystemMicros() uint64 {
	return loadUint64(&systemMicrosValue)
}

// setSystemMicros sets the system time
func setSystemMicros(us uint64) {
	storeUint64(&systemMicrosValue, us)
}

func loadUint64(p *uint64) uint64 {
	state := disableInterrupts()
	v := *p
	restoreInterrupts(state)
	return v
}

func storeUint64(p *uint64, v uint64) {
	state := disableInterrupts()
	*p = v
	restoreInterrupts(state)
}
