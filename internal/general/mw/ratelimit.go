package mw

import (
	"sync"

	"golang.org/x/time/rate"
)

// DeviceRateLimiter keeps one token bucket per device so a chatty tracker
// cannot starve the rest of the fleet's ingest capacity.
type DeviceRateLimiter struct {
	devices map[string]*rate.Limiter
	mu      sync.RWMutex
	r       rate.Limit
	b       int
}

// NewDeviceRateLimiter creates a limiter allowing r samples per second
// with bursts of b per device.
func NewDeviceRateLimiter(r rate.Limit, b int) *DeviceRateLimiter {
	return &DeviceRateLimiter{
		devices: make(map[string]*rate.Limiter),
		r:       r,
		b:       b,
	}
}

func (l *DeviceRateLimiter) limiterOf(deviceID string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.devices[deviceID]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok = l.devices[deviceID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.r, l.b)
	l.devices[deviceID] = limiter
	return limiter
}

// Allow reports whether the device may submit another sample now.
func (l *DeviceRateLimiter) Allow(deviceID string) bool {
	return l.limiterOf(deviceID).Allow()
}
