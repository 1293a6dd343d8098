//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"gofoc/core"
)

// RP2040 timer peripheral: a 64-bit microsecond counter.
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24
	timerTIMERAWL = timerBase + 0x28
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// GetHardwareUptime reads the full 64-bit timer. The high word is read
// twice to detect a carry between the two reads.
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// hardwareClock is the motor clock. Every read also refreshes the core
// system time so the timing ring and SystemClock agree with it.
type hardwareClock struct{}

func (hardwareClock) Now() core.Instant {
	us := GetHardwareUptime()
	core.SetTime(us)
	return core.Instant(us)
}
