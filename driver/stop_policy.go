package driver

// StopPolicy decides when the driver's loop has done enough work. It is
// consulted after every serviced operation with the running operation count.
// Implementations must be safe for repeated calls; the driver invokes them
// from its own goroutine only.
type StopPolicy interface {
	// ShouldStop reports whether the driver should stop after having
	// serviced ops operations.
	//
	// Parameters:
	//   - ops: The number of operations serviced so far
	//
	// Returns:
	//   - true if the driver should stop
	ShouldStop(ops uint64) bool
}

// StopPolicyFunc adapts a plain function to the StopPolicy interface.
type StopPolicyFunc func(ops uint64) bool

// ShouldStop implements StopPolicy.
func (f StopPolicyFunc) ShouldStop(ops uint64) bool {
	return f(ops)
}

// StopAfterOps returns a policy that stops the driver once n operations have
// been serviced. A fixed operation budget is mostly useful for tests and
// demos; long-running servers should prefer RunForever with context
// cancellation.
//
// Parameters:
//   - n: The operation budget
//
// Returns:
//   - A StopPolicy satisfied at or beyond n operations
func StopAfterOps(n uint64) StopPolicy {
	return StopPolicyFunc(func(ops uint64) bool {
		return ops >= n
	})
}

// RunForever returns a policy that never stops the driver; cancelling the
// context passed to Run is then the only way to end the loop.
//
// Returns:
//   - A StopPolicy that is never satisfied
func RunForever() StopPolicy {
	return StopPolicyFunc(func(uint64) bool {
		return false
	})
}
