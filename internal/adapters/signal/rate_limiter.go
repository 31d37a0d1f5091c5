package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/voicecall/internal/domain"
)

// CallRateLimiter bounds how often one client may start calls.
type CallRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.ClientID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewCallRateLimiter(perSecond float64, burst int) *CallRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &CallRateLimiter{
		limiters: make(map[domain.ClientID]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *CallRateLimiter) Allow(id domain.ClientID) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[id] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *CallRateLimiter) Forget(id domain.ClientID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, id)
}
