// Package loadgen issues controlled synthetic traffic against the platform
// and records every outcome into the run's metric collector.
package loadgen

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces request dispatch to approximate a uniform arrival rate: the
// i-th request of a burst targeting rps is released at start + i/rps. This is
// uniform inter-arrival spacing, not Poisson arrivals.
type Pacer struct {
	start time.Time
	rps   float64
}

// NewPacer starts pacing from now at the given target rate.
func NewPacer(start time.Time, rps float64) *Pacer {
	return &Pacer{start: start, rps: rps}
}

// Wait sleeps until the scheduled dispatch time of request i, or until ctx is
// done.
func (p *Pacer) Wait(ctx context.Context, i int) error {
	if p.rps <= 0 {
		return ctx.Err()
	}
	target := p.start.Add(time.Duration(float64(i) / p.rps * float64(time.Second)))
	delay := time.Until(target)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errorList collects transport failures from worker goroutines. Failures are
// surfaced in the final report, never silently dropped.
type errorList struct {
	mu   sync.Mutex
	errs []string
}

func (e *errorList) add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.errs = append(e.errs, err.Error())
	e.mu.Unlock()
}

func (e *errorList) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.errs...)
}

// fatalError keeps the first fatal (authentication) failure seen by any
// worker; the coordinator checks it after each phase and aborts the run.
type fatalError struct {
	mu  sync.Mutex
	err error
}

func (f *fatalError) set(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *fatalError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
