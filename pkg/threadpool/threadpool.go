package threadpool

// The functions below drive the pools of the Default registry.

// NumThreads returns the thread count owner's next dispatch would use.
func NumThreads(owner Owner) int { return Default().Pool(owner).NumThreads() }

// SetThreadType sets the thread type of owner's pool.
func SetThreadType(owner Owner, t ThreadType) { Default().Pool(owner).SetThreadType(t) }

// SetServoRunning records whether the servo loop is running.
func SetServoRunning(running bool) { Default().Settings().SetServoRunning(running) }

// SetMaxCores caps the threads of every default pool. Zero removes the cap.
func SetMaxCores(n int) { Default().Settings().SetMaxCores(n) }

// SetProcessorTargetingEnabled turns worker pinning on or off.
func SetProcessorTargetingEnabled(enabled bool) {
	Default().Settings().SetProcessorTargetingEnabled(enabled)
}

// Run dispatches fn on owner's pool and blocks.
func Run(owner Owner, fn Func, opts ...RunOption) { Default().Pool(owner).Run(fn, opts...) }

// RunLoop dispatches fn over [0, maxIdx) on owner's pool and blocks.
func RunLoop(owner Owner, maxIdx int, fn LoopFunc, opts ...RunOption) {
	Default().Pool(owner).RunLoop(maxIdx, fn, opts...)
}

// RunNoWait dispatches fn on owner's pool without blocking.
func RunNoWait(owner Owner, fn Func, opts ...RunOption) {
	Default().Pool(owner).RunNoWait(fn, opts...)
}

// RunLoopNoWait dispatches fn over [0, maxIdx) on owner's pool without
// blocking.
func RunLoopNoWait(owner Owner, maxIdx int, fn LoopFunc, opts ...RunOption) {
	Default().Pool(owner).RunLoopNoWait(maxIdx, fn, opts...)
}

// Wait joins owner's pending dispatch.
func Wait(owner Owner) {
	if p, ok := Default().Lookup(owner); ok {
		p.Wait()
	}
}

// Running reports whether any of owner's workers is executing a shard.
func Running(owner Owner) bool {
	if p, ok := Default().Lookup(owner); ok {
		return p.Running()
	}
	return false
}

// Shutdown joins owner's worker threads and drops its pool. Owners other
// than the long-lived main and servo loops must call it before they finish,
// or their worker threads stay parked for the life of the process.
func Shutdown(owner Owner) { Default().Shutdown(owner) }
