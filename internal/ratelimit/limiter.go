// Package ratelimit paces outbound fetches so a batch refresh never
// hammers a single origin host.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a minimum interval between requests to the same host
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

// New creates a limiter with the given minimum interval per host
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Allow reports whether a request to host may proceed now, and records the
// attempt if so.
func (l *Limiter) Allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.hosts[host]
	now := time.Now()
	if ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.hosts[host] = now
	return true
}

// Wait blocks until a request to host is allowed, then records it
func (l *Limiter) Wait(host string) {
	for {
		l.mu.Lock()
		last, ok := l.hosts[host]
		now := time.Now()
		if !ok || now.Sub(last) >= l.minInterval {
			l.hosts[host] = now
			l.mu.Unlock()
			return
		}
		sleep := l.minInterval - now.Sub(last)
		l.mu.Unlock()
		time.Sleep(sleep)
	}
}
