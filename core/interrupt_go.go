//go:build !tinygo

package core

// irqState stands in for the saved interrupt mask on regular Go, where
// there are no interrupts to mask. Shared state is guarded by mutexes instead.
type irqState uintptr

// disableInterrupts is a no-op on regular Go
func disableInterrupts() irqState {
	return 0
}

// restoreInterrupts is a no-op on regular Go
func restoreInterrupts(irqState) {}
