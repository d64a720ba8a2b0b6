/*
Copyright 2025 The GitHub Webhook Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package interrupts exposes helpers for graceful handling of interrupt
// signals and provides a mechanism by which all work in a process is
// stopped and drained before the process exits. The expectation is that
// all registrations happen from the main goroutine before any signal can
// plausibly arrive.
package interrupts

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	single = newManager()

	// only one interrupt manager exists per process, but tests need to
	// inject their own signal source and grace period
	signalsLock sync.Mutex
	signals     = func() <-chan os.Signal {
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		return sig
	}
	gracePeriod = 1 * time.Minute
)

type manager struct {
	c  *sync.Cond
	wg sync.WaitGroup

	seenSignal bool
	ctx        context.Context
	cancel     context.CancelFunc
}

func newManager() *manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &manager{
		c:      sync.NewCond(&sync.Mutex{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// handleSignal waits for the first termination signal, cancels the shared
// context and wakes everyone waiting on the condition.
func handleSignal() {
	signalsLock.Lock()
	sigChan := signals()
	signalsLock.Unlock()
	s := <-sigChan
	logrus.WithField("signal", s).Info("Received signal.")
	single.c.L.Lock()
	single.seenSignal = true
	single.cancel()
	single.c.Broadcast()
	single.c.L.Unlock()
}

// wait blocks until the first signal is seen, then gives workers the grace
// period to finish up.
func wait() {
	single.c.L.Lock()
	if !single.seenSignal {
		single.c.Wait()
	}
	single.c.L.Unlock()
}

var once sync.Once

func run() {
	once.Do(func() {
		go handleSignal()
	})
}

// Context returns a context that is cancelled when an interrupt hits.
// Using this context is a weak form of registering with the manager: work
// using it will delay shutdown by at most the grace period, but is not
// otherwise waited on.
func Context() context.Context {
	run()
	return single.ctx
}

// Run starts the work in a goroutine, passing it a context that will be
// cancelled on interrupt, and ensures the process waits for the work to
// finish within the grace period before exiting.
func Run(work func(ctx context.Context)) {
	run()
	single.wg.Add(1)
	go func() {
		defer single.wg.Done()
		work(single.ctx)
	}()
}

// ListenAndServe runs the HTTP server in a goroutine and shuts it down
// gracefully on interrupt, giving it the provided grace period to finish
// in-flight requests.
func ListenAndServe(server *http.Server, gracePeriod time.Duration) {
	run()
	single.wg.Add(1)
	go func() {
		defer single.wg.Done()
		logrus.WithError(server.ListenAndServe()).Info("Server exited.")
	}()
	single.wg.Add(1)
	go func() {
		defer single.wg.Done()
		wait()
		ctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
		defer cancel()
		logrus.WithError(server.Shutdown(ctx)).Info("Server shut down.")
	}()
}

// OnInterrupt registers the callback to run when an interrupt hits; the
// process will not exit until the callback returns.
func OnInterrupt(callback func()) {
	run()
	single.wg.Add(1)
	go func() {
		defer single.wg.Done()
		wait()
		callback()
	}()
}

// WaitForGracefulShutdown waits until all registered work has finished or
// the grace period after the first signal expires, whichever comes first.
// Call this at the end of main.
func WaitForGracefulShutdown() {
	run()
	wait()
	signalsLock.Lock()
	grace := gracePeriod
	signalsLock.Unlock()
	finished := make(chan struct{})
	go func() {
		single.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		logrus.Info("All workers gracefully terminated, exiting.")
	case <-time.After(grace):
		logrus.Warn("Timed out waiting for workers to gracefully terminate, exiting.")
	}
}
