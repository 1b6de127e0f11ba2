// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gate provides a counting gate: a signed counter that
// goroutines mutate concurrently, paired with waits that block while
// the counter is above zero. A task system uses it to track
// outstanding work and to park idle workers instead of spinning.
package gate

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// WakePolicy selects how a drain (the counter reaching zero or below)
// releases parked waiters.
type WakePolicy int32

const (
	// WakeOneRelay wakes a single waiter per drain. Each woken waiter
	// forwards one more wake before releasing the lock if other waiters
	// remain, so one drain ripples through all of them one lock handoff
	// at a time instead of stampeding every waiter onto the lock at once.
	WakeOneRelay WakePolicy = iota

	// WakeAll broadcasts every drain to all parked waiters; each waiter
	// re-checks the counter on its own after reacquiring the lock.
	WakeAll
)

func (p WakePolicy) String() string {
	switch p {
	case WakeOneRelay:
		return "wake-one-relay"
	case WakeAll:
		return "wake-all"
	default:
		return fmt.Sprintf("WakePolicy(%d)", int32(p))
	}
}

// Gate is a counter that goroutines can increment, decrement, or sleep
// on until it is decremented to zero. The counter is signed and may go
// negative, which is legal when the order of increments and decrements
// across producers and consumers is non-deterministic; callers own the
// net-balance semantics. While the counter is at or below zero no
// waiter stays asleep, provided drains arrive via Decrement or
// Subtract.
//
// The owner must not treat the gate as finished with until every wait
// call on it has returned: a waiter woken by the final drain may still
// hold the lock relaying a wake to a sibling.
type Gate struct {
	log    Logger
	policy WakePolicy

	lock sync.Mutex
	cond *sync.Cond

	// both guarded by lock
	counter int32
	waiters int32
}

// New returns a gate with a zero counter and no waiters. An
// unrecognized policy falls back to WakeOneRelay.
func New(log Logger, policy WakePolicy) *Gate {
	if policy != WakeOneRelay && policy != WakeAll {
		log.Warn("Unknown wake policy", zap.Int32("policy", int32(policy)), zap.Stringer("fallback", WakeOneRelay))
		policy = WakeOneRelay
	}

	g := &Gate{
		log:    log,
		policy: policy,
	}
	g.cond = sync.NewCond(&g.lock)

	g.log.Debug("Created gate", zap.Stringer("wakePolicy", policy))

	return g
}

// Increment adds one to the counter and returns the new value. It
// never wakes waiters, as the counter only moves away from drained.
func (g *Gate) Increment() int32 {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.counter++
	return g.counter
}

// Decrement subtracts one from the counter and returns the new value.
// A result at or below zero wakes waiters according to the wake policy.
func (g *Gate) Decrement() int32 {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.counter--
	if g.counter <= 0 {
		g.wake()
	}
	return g.counter
}

// Add adjusts the counter by n and returns the new value. Like
// Increment it never wakes waiters, even if a negative n leaves the
// counter at or below zero; deltas that release work go through
// Subtract.
func (g *Gate) Add(n int32) int32 {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.counter += n
	return g.counter
}

// Subtract lowers the counter by n and returns the new value, waking
// waiters under the same condition as Decrement.
func (g *Gate) Subtract(n int32) int32 {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.counter -= n
	if g.counter <= 0 {
		g.wake()
	}
	return g.counter
}

// Count returns the current counter value.
func (g *Gate) Count() int32 {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.counter
}

// WaitUntilZero blocks while the counter is above zero and returns once
// it observes the counter at or below zero. A wake with the counter
// still positive puts the caller back to sleep. Returns whether the
// caller slept at least once; against an already drained gate it
// returns false without sleeping.
func (g *Gate) WaitUntilZero() bool {
	var slept bool

	g.lock.Lock()
	for g.counter > 0 {
		g.waiters++
		g.log.Verbo("Parking on gate", zap.Int32("counter", g.counter), zap.Int32("waiters", g.waiters))
		g.cond.Wait()
		g.waiters--

		slept = true
	}

	g.relay()
	g.lock.Unlock()

	return slept
}

// WaitOneWakeup blocks for at most one wake: if the counter is above
// zero, the caller sleeps until any wake arrives and then returns
// without re-checking the counter. A worker that prefers bounded sleep
// latency can call this, re-check its work via a cheap spin, and sleep
// again only if still idle. Returns whether the caller slept.
func (g *Gate) WaitOneWakeup() bool {
	var slept bool

	g.lock.Lock()
	if g.counter > 0 {
		g.waiters++
		g.log.Verbo("Parking on gate", zap.Int32("counter", g.counter), zap.Int32("waiters", g.waiters))
		g.cond.Wait()
		g.waiters--

		slept = true
	}

	g.relay()
	g.lock.Unlock()

	return slept
}

// wake is called with the lock held when the counter has dropped to
// zero or below.
func (g *Gate) wake() {
	g.log.Verbo("Gate drained", zap.Int32("counter", g.counter), zap.Int32("waiters", g.waiters))
	if g.policy == WakeAll {
		g.cond.Broadcast()
		return
	}
	g.cond.Signal()
}

// relay runs on every exit path of a wait call, with the lock still
// held. Under WakeOneRelay it forwards exactly one wake if other
// waiters remain parked, which keeps the wake chain moving whether the
// caller slept or found the gate already drained.
func (g *Gate) relay() {
	if g.policy != WakeOneRelay {
		return
	}
	if g.waiters > 0 {
		g.cond.Signal()
	}
}
