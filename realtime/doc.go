// Package realtime runs fixed-rate periodic tasks for the kart controller.
//
// The controller has two tiers. The event dispatch loop processes one event
// at a time to completion. Beside it, periodic work runs on its own
// goroutine at a fixed tick rate:
//   - the closed-loop motor controller (1 ms)
//   - the framework timer service (1 ms resolution)
//   - the simulated drive plant, when running without hardware (1 ms)
//
// A Runtime owns one ticker and one goroutine. Each tick calls the task
// function with the tick number. A panic inside a tick is recovered and
// logged; the loop keeps running.
//
// # Example Usage
//
//	rt := realtime.NewRuntime("motor", ctrl.Tick, realtime.Config{
//		TickRate: time.Millisecond,
//		Logger:   log,
//	})
//	rt.Start(ctx)
//	defer rt.Stop()
//
// # Communication
//
// Tasks never call into the state machines. They talk to the dispatch tier
// by posting events, and the dispatch tier talks to them only through
// mutex-guarded setters on the task's own type.
//
// # Determinism
//
// Step runs a single tick synchronously on the caller's goroutine. Tests
// use it instead of Start so that time advances exactly when they say so.
package realtime
