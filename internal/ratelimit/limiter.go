package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter caps the rate of authentication attempts sent to a target.
type Limiter struct {
	limiter   *rate.Limiter
	burstSize int
	waits     int
	mu        sync.Mutex
}

// Config contains rate limiting configuration
type Config struct {
	// RequestsPerSecond limits the number of attempts per second. Zero or
	// negative disables limiting.
	RequestsPerSecond float64

	// BurstSize allows brief bursts above the rate limit
	BurstSize int
}

// NewLimiter creates a new rate limiter with the given configuration
func NewLimiter(config Config) *Limiter {
	limit := rate.Limit(config.RequestsPerSecond)
	if config.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := config.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter:   rate.NewLimiter(limit, burst),
		burstSize: burst,
	}
}

// Wait blocks until the rate limiter allows the request
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
	return nil
}

// GetStats returns current rate limiter statistics
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Limit:     float64(l.limiter.Limit()),
		BurstSize: l.burstSize,
		Waits:     l.waits,
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	Limit     float64
	BurstSize int
	Waits     int
}
