// Package leader implements the heartbeat-timeout takeover detector: a
// periodic task that watches one peer's last heartbeat and triggers the
// manager's leadership transition the first time the gap exceeds the
// grace-padded heartbeat delay.
//
// Grounded structurally on pkg/listener.Listener[T]'s generic
// Start(ctx)/Stop()-able goroutine shape, adapted here to drive ticks off
// a time.Ticker instead of a channel, and on pkg/consensus.Consensus
// (absorbed directly into the Manager collaborator below rather than kept
// as a parallel interface - see DESIGN.md) for the IsLeader/LeaderID/
// BecameLeader naming.
package leader

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// heartbeatGraceNumerator/Denominator implement the 30% grace factor
// without floating point: heartBeatDelay = configured * 130 / 100.
const (
	heartbeatGraceNumerator   = 130
	heartbeatGraceDenominator = 100
)

// PeerHeartbeat is the watched peer's heartbeat clock.
type PeerHeartbeat interface {
	LastHeartBeat() time.Time
}

// Manager is notified exactly once when this Checker observes a timeout.
// Reconciling the actual election (TAKING_LEADERSHIP -> LEADER or back to
// FOLLOWER) is explicitly the manager's job, not the checker's.
type Manager interface {
	BecameLeader()
}

// Checker runs on a timer goroutine, polling peer.LastHeartBeat() every
// tick and comparing the gap to heartBeatDelay.
type Checker struct {
	peer              PeerHeartbeat
	manager           Manager
	heartBeatDelay    time.Duration
	tickInterval      time.Duration
	now               func() time.Time

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChecker returns a Checker watching peer, notifying manager, with
// heartBeatDelay = heartbeatInterval * 1.3 (a 30% grace period). It ticks
// once per heartbeatInterval.
func NewChecker(peer PeerHeartbeat, manager Manager, heartbeatInterval time.Duration) *Checker {
	return &Checker{
		peer:           peer,
		manager:        manager,
		heartBeatDelay: heartbeatInterval * heartbeatGraceNumerator / heartbeatGraceDenominator,
		tickInterval:   heartbeatInterval,
		now:            time.Now,
		done:           make(chan struct{}),
	}
}

// HeartBeatDelay reports the grace-padded timeout threshold in effect.
func (c *Checker) HeartBeatDelay() time.Duration { return c.heartBeatDelay }

// Start begins ticking on its own goroutine until ctx is cancelled or
// Stop is called, whichever comes first.
func (c *Checker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.tick() {
					return
				}
			}
		}
	}()
}

// tick runs one check. It reports true once it has fired the takeover, so
// Start's loop can exit without waiting for Stop to be called: the
// checker must atomically cancel itself before invoking the manager
// callback, so BecameLeader fires at most once per instance.
func (c *Checker) tick() (fired bool) {
	gap := c.now().Sub(c.peer.LastHeartBeat())
	if gap <= c.heartBeatDelay {
		return false
	}
	c.once.Do(func() {
		fired = true
		slog.Warn("leader: heartbeat timeout, taking leadership", "gap", gap, "delay", c.heartBeatDelay)
		if c.cancel != nil {
			c.cancel()
		}
		c.manager.BecameLeader()
	})
	return fired
}

// Stop cancels the ticking goroutine and waits for it to exit. Calling
// Stop after the checker has already self-cancelled on a timeout is a
// no-op past the first call.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}
