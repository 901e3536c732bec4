package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sizes the per-client token buckets. Zero fields take DefaultConfig values.
type Config struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RPS <= 0 {
		c.RPS = def.RPS
	}
	if c.Burst <= 0 {
		c.Burst = def.Burst
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = def.MaxAge
	}
	return c
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Clients holds one token bucket per client key.
type Clients struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewClients(cfg Config) *Clients {
	return &Clients{
		cfg:     cfg.withDefaults(),
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token for key and reports the tokens left afterwards.
func (c *Clients) Allow(key string, now time.Time) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(c.cfg.RPS), c.cfg.Burst)}
		c.buckets[key] = b
	}
	b.lastSeen = now

	if !b.limiter.AllowN(now, 1) {
		return false, 0
	}
	return true, max(int(b.limiter.TokensAt(now)), 0)
}

// Evict drops buckets idle for longer than MaxAge and returns how many went.
func (c *Clients) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, b := range c.buckets {
		if now.Sub(b.lastSeen) > c.cfg.MaxAge {
			delete(c.buckets, key)
			evicted++
		}
	}
	return evicted
}

func (c *Clients) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// RunJanitor evicts idle buckets every CleanupInterval until ctx is done.
func (c *Clients) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Evict(now)
		}
	}
}
