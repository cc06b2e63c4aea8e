// Package dispatch implements a cooperative, non-preemptive periodic task
// dispatcher with a fixed-capacity task table.
//
// A Registry holds up to Config.MaxTasks task descriptors. Tasks are
// registered once at startup and keep their index for the lifetime of the
// registry. A Dispatcher drives the table through two entry points:
//
//   - Tick, called once per timer period, advances every non-suspended task's
//     counter and marks the task Ready when its period has elapsed.
//   - RunReady, called repeatedly from the foreground loop, runs each Ready
//     task once, switching it back to Blocked before its callback is invoked.
//
// Tick and RunReady may run concurrently with each other (the timer usually
// fires from another goroutine) but neither is reentrant: a nested call is
// dropped. The per-task state and counter are packed into a single word and
// updated with compare-and-swap, so no locks are taken on either path.
//
//	reg, _ := dispatch.NewRegistry(dispatch.DefaultConfig())
//	reg.Register(dispatch.Func(blink), "led0", 1, dispatch.Blocked)
//	d := dispatch.NewDispatcher(reg)
//
//	go func() {
//		for range time.Tick(time.Second) {
//			d.Tick()
//		}
//	}()
//	for {
//		d.RunReady()
//	}
//
// The package performs no logging and recovers no panics; both belong to the
// caller.
package dispatch
