// Package sched provides the cooperative timer scheduler that drives
// the alignment controller. Exactly one timer callback is in flight at
// any time; a callback returns its next wake time (or Never to stop),
// so the controller's tick is re-invoked only after the previous tick
// has returned. This removes any need for locking inside the
// optimizer core.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Wake time constants
const (
	Now   = 0.0
	Never = 9999999999999999.0
)

// TimerCallback is called when a timer fires. The callback receives
// the event time and returns the next wake time; return Never to
// unregister the timer.
type TimerCallback func(eventtime float64) float64

// Timer represents a registered timer.
type Timer struct {
	id       uint64
	callback TimerCallback
	waketime float64
	running  bool
	mu       sync.Mutex
}

// Waketime returns the timer's current wake time.
func (t *Timer) Waketime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waketime
}

// Scheduler manages timers and dispatches their callbacks serially.
type Scheduler struct {
	mu          sync.Mutex
	timers      []*Timer
	nextTimerID uint64
	nextWake    float64
	kick        chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	running   atomic.Bool
	wg        sync.WaitGroup
	startTime time.Time
}

// New creates a new Scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		nextWake:  Never,
		kick:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Monotonic returns the current monotonic time in seconds.
func (s *Scheduler) Monotonic() float64 {
	return time.Since(s.startTime).Seconds()
}

// RegisterTimer registers a new timer with the given callback and
// wake time.
func (s *Scheduler) RegisterTimer(callback TimerCallback, waketime float64) *Timer {
	s.mu.Lock()
	timer := &Timer{
		id:       atomic.AddUint64(&s.nextTimerID, 1),
		callback: callback,
		waketime: waketime,
	}
	s.timers = append(s.timers, timer)
	if waketime < s.nextWake {
		s.nextWake = waketime
	}
	s.mu.Unlock()

	s.wake()
	return timer
}

// UnregisterTimer removes a timer.
func (s *Scheduler) UnregisterTimer(timer *Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer.mu.Lock()
	timer.waketime = Never
	timer.mu.Unlock()

	for i, t := range s.timers {
		if t.id == timer.id {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			break
		}
	}
}

// UpdateTimer updates a timer's wake time. A timer currently running
// its callback keeps the wake time the callback returns.
func (s *Scheduler) UpdateTimer(timer *Timer, waketime float64) {
	timer.mu.Lock()
	if timer.running {
		timer.mu.Unlock()
		return
	}
	timer.waketime = waketime
	timer.mu.Unlock()

	s.mu.Lock()
	if waketime < s.nextWake {
		s.nextWake = waketime
	}
	s.mu.Unlock()

	s.wake()
}

// wake nudges the dispatch loop after a timer change.
func (s *Scheduler) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run starts the dispatch loop.
func (s *Scheduler) Run() {
	if s.running.Swap(true) {
		return
	}
	s.wg.Add(1)
	go s.dispatchLoop()
}

// End signals the scheduler to stop.
func (s *Scheduler) End() {
	s.running.Store(false)
	s.cancel()
}

// Wait blocks until the dispatch loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		eventtime := s.Monotonic()
		timeout := s.checkTimers(eventtime)

		if timeout > 0 {
			delay := time.Duration(timeout * float64(time.Second))
			if delay > time.Second {
				delay = time.Second
			}
			select {
			case <-time.After(delay):
			case <-s.kick:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// checkTimers fires due timers and returns the delay until the next
// one.
func (s *Scheduler) checkTimers(eventtime float64) float64 {
	s.mu.Lock()
	if eventtime < s.nextWake {
		delay := s.nextWake - eventtime
		s.mu.Unlock()
		return delay
	}
	timers := make([]*Timer, len(s.timers))
	copy(timers, s.timers)
	s.nextWake = Never
	s.mu.Unlock()

	for _, timer := range timers {
		timer.mu.Lock()
		waketime := timer.waketime
		if eventtime >= waketime {
			timer.waketime = Never
			timer.running = true
			timer.mu.Unlock()

			newWaketime := timer.callback(eventtime)

			timer.mu.Lock()
			timer.running = false
			if newWaketime < timer.waketime {
				timer.waketime = newWaketime
			}
		}
		waketime = timer.waketime
		timer.mu.Unlock()

		s.mu.Lock()
		if waketime < s.nextWake {
			s.nextWake = waketime
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	delay := s.nextWake - eventtime
	s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	return delay
}
