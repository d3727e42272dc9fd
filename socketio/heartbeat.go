package socketio

import (
	"sync"
	"time"
)

type heartbeatConfig struct {
	interval time.Duration
	timeout  time.Duration
}

type heartbeatTarget interface {
	SendHeartbeat()
	expire()
}

// heartbeatScheduler drives two timers for one session: heartbeats every
// interval and a disconnect once the client has been silent for timeout.
// Both are restarted by reschedule whenever the client shows life.
type heartbeatScheduler struct {
	mu     sync.Mutex
	cfg    heartbeatConfig
	target heartbeatTarget
	// expired is called right before a timeout disconnect, may be nil
	expired func()

	disabled   bool
	generation uint64
	// heartbeats due at or before deadline are always sent before the timeout disconnect
	nextHeartbeat   time.Time
	deadline        time.Time
	sendTimer       *time.Timer
	disconnectTimer *time.Timer
}

func newHeartbeatScheduler(cfg heartbeatConfig, target heartbeatTarget) *heartbeatScheduler {
	return &heartbeatScheduler{cfg: cfg, target: target}
}

func (h *heartbeatScheduler) reschedule() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disabled {
		return
	}
	h.stopTimers()
	gen := h.generation
	now := time.Now()
	h.nextHeartbeat = now.Add(h.cfg.interval)
	h.deadline = now.Add(h.cfg.timeout)
	h.sendTimer = time.AfterFunc(h.cfg.interval, func() { h.heartbeat(gen) })
	h.disconnectTimer = time.AfterFunc(h.cfg.timeout, func() { h.timeout(gen) })
}

func (h *heartbeatScheduler) heartbeat(gen uint64) {
	h.mu.Lock()
	if h.disabled || gen != h.generation || h.nextHeartbeat.After(h.deadline) {
		h.mu.Unlock()
		return
	}
	h.nextHeartbeat = h.nextHeartbeat.Add(h.cfg.interval)
	h.sendTimer = time.AfterFunc(time.Until(h.nextHeartbeat), func() { h.heartbeat(gen) })
	h.mu.Unlock()

	h.target.SendHeartbeat()
}

func (h *heartbeatScheduler) timeout(gen uint64) {
	h.mu.Lock()
	if h.disabled || gen != h.generation {
		h.mu.Unlock()
		return
	}
	due := 0
	for ; !h.nextHeartbeat.After(h.deadline); h.nextHeartbeat = h.nextHeartbeat.Add(h.cfg.interval) {
		due++
	}
	h.stopTimers()
	h.mu.Unlock()

	for ; due > 0; due-- {
		h.target.SendHeartbeat()
	}
	if h.expired != nil {
		h.expired()
	}
	h.target.expire()
}

// scheduleDisconnect arms a single disconnect after timeout. It is used
// by sessions that have to wait for the client before tearing down, so
// it works even when heartbeats are disabled.
func (h *heartbeatScheduler) scheduleDisconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTimers()
	h.disconnectTimer = time.AfterFunc(h.cfg.timeout, h.target.expire)
}

// disable stops both timers for good. Idempotent.
func (h *heartbeatScheduler) disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disabled = true
	h.stopTimers()
}

// must be called with h.mu held
func (h *heartbeatScheduler) stopTimers() {
	h.generation++
	if h.sendTimer != nil {
		h.sendTimer.Stop()
		h.sendTimer = nil
	}
	if h.disconnectTimer != nil {
		h.disconnectTimer.Stop()
		h.disconnectTimer = nil
	}
}
