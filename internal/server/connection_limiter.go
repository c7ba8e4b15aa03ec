package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

const limiterCleanupInterval = 5 * time.Minute

// ConnectionLimits enforces three limits on the WebSocket endpoint: a global
// connection cap, a per-IP connection cap, and a per-IP token-bucket rate on
// new connections.
type ConnectionLimits struct {
	current atomic.Int64
	max     int64

	mu        sync.Mutex
	perIP     map[string]*ipEntry
	maxPerIP  int
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type ipEntry struct {
	count    int
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewConnectionLimits creates a combined limiter.
func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		max:       globalMax,
		perIP:     make(map[string]*ipEntry),
		maxPerIP:  perIPMax,
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(limiterCleanupInterval),
	}
}

// Acquire attempts to claim a connection slot for ip. On rejection it returns
// false plus the limit that was hit; no partial state is left behind.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Now().After(l.cleanupAt) {
		l.cleanup()
		l.cleanupAt = time.Now().Add(limiterCleanupInterval)
	}

	entry, exists := l.perIP[ip]
	if !exists {
		entry = &ipEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.perIP[ip] = entry
	}
	entry.lastSeen = time.Now()

	if !entry.limiter.Allow() {
		return false, LimitReasonRate
	}
	if entry.count >= l.maxPerIP {
		return false, LimitReasonPerIP
	}

	for {
		current := l.current.Load()
		if current >= l.max {
			return false, LimitReasonGlobal
		}
		if l.current.CompareAndSwap(current, current+1) {
			break
		}
	}

	entry.count++
	return true, ""
}

// Release returns the slot claimed by Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.perIP[ip]; ok && entry.count > 0 {
		entry.count--
	}
	l.current.Add(-1)
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

// UniqueIPs returns the number of tracked IP addresses.
func (l *ConnectionLimits) UniqueIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perIP)
}

// cleanup drops idle entries with no open connections. Must hold mu.
func (l *ConnectionLimits) cleanup() {
	cutoff := time.Now().Add(-2 * limiterCleanupInterval)
	for ip, entry := range l.perIP {
		if entry.count == 0 && entry.lastSeen.Before(cutoff) {
			delete(l.perIP, ip)
		}
	}
}
