package client

import "time"

// Policy controls reconnect pacing: delay before retry N is
// min(BaseDelay * 2^N, MaxDelay). The attempt counter resets to zero on every
// successful connect. No jitter is applied; delays are deterministic.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 means retry forever
}

// DefaultPolicy retries forever, starting at 500ms and capping at 30s.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
	}
}

// Delay returns the wait before the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
