package ratelimit

import (
	"sync"
	"time"

	"github.com/tentens-tech/rental-deposit/internal/infrastructure/metrics"
	"golang.org/x/time/rate"
)

const DefaultIdleTTL = 10 * time.Minute

// Limiter keeps one token bucket per account and drops buckets that have
// been idle for longer than idleTTL.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	accounts map[string]*bucket
	hits     uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns nil when rps or burst are not positive; a nil Limiter allows
// everything.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}

	return &Limiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  DefaultIdleTTL,
		accounts: make(map[string]*bucket),
	}
}

func (l *Limiter) Allow(account string, now time.Time) bool {
	if l == nil || account == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.accounts[account]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.accounts[account] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for key, v := range l.accounts {
			if v.lastSeen.Before(cutoff) {
				delete(l.accounts, key)
			}
		}
	}

	if !allowed {
		metrics.RateLimited.Inc()
	}
	return allowed
}
