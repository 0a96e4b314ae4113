// Package faultsim is a fault injection harness for a simulated preemptive
// real-time kernel. It reproduces classic concurrency faults on demand: lost
// updates, lock-order deadlock, priority inversion, starvation reset by a
// watchdog and stack overflow.
//
// The Service type ties the pieces together:
//
//	srv, _ := faultsim.New(ctx)
//	run, _ := srv.Run(ctx, model.ScenarioDeadlock)
//	final, _ := srv.Wait(ctx, run.ID)
//	fmt.Println(final.Outcome.Signal)
//
// Scenarios run on the kernel package, which schedules goroutine backed tasks
// by priority across a fixed number of simulated cores.
package faultsim
