// Package worker gives NymQuest's background loops that embed it (the
// persistence writer and the UDP transport's read loop) a uniform
// start/stop/drain contract.
//
// The shape mirrors how katzenpost's core/worker.Worker is used at every
// call site (connection.go, decoy.go, server/cborplugin/client.go,
// disk.go): embed it, call Go(fn) to start a goroutine, Halt() to request
// shutdown, HaltCh() inside the loop to notice the request, and Wait() to
// block until every spawned goroutine has returned.
package worker

import "sync"

// Worker is meant to be embedded by value in structs that own one or more
// background goroutines.
type Worker struct {
	initOnce sync.Once
	haltCh   chan struct{}
	haltOnce sync.Once
	wg       sync.WaitGroup
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}

// HaltCh returns the channel that closes when Halt is called. Loops select
// on this alongside their other channels to notice shutdown requests.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltCh
}

// Go starts fn in a new goroutine tracked by Wait.
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// Halt requests shutdown of every goroutine started with Go. It is safe to
// call more than once and from any goroutine.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
}

// Wait blocks until every goroutine started with Go has returned. Callers
// normally call Halt followed by Wait.
func (w *Worker) Wait() {
	w.init()
	w.wg.Wait()
}
