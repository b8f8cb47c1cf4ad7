// Copyright (C) 2024 Polaris Markets Ltd.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package admission

import (
	"context"
	"sync"
	"time"

	"code.polarismarkets.io/polaris/logging"
)

// Controller is a token-bucket rate limiter keyed by trader identity,
// gating inbound submissions before they reach the matching engine. A
// party can burst up to the bucket capacity, then is held to the
// sustained rate; submissions over the rate are rejected, never queued.
type Controller struct {
	log *logging.Logger
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
	// now is indirected for tests
	now func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// New returns an admission controller and starts its idle-bucket cleanup
// loop, which stops when the context is cancelled.
func New(ctx context.Context, log *logging.Logger, cfg Config) *Controller {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())

	c := &Controller{
		log:     log,
		cfg:     cfg,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
	go c.startCleanup(ctx)
	return c
}

// Allow consumes one token from the key's bucket if available. It returns
// false when the key exceeded its configured rate.
func (c *Controller) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(c.cfg.Burst)}
		c.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastSeen).Seconds()
		b.tokens += elapsed * float64(c.cfg.OrdersPerSecond)
		if max := float64(c.cfg.Burst); b.tokens > max {
			b.tokens = max
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (c *Controller) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval.Get())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Controller) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.IdleTimeout.Get())
	var removed int
	for key, b := range c.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(c.buckets, key)
			removed++
		}
	}
	if removed > 0 && c.log.IsDebug() {
		c.log.Debug("cleaned up idle admission buckets",
			logging.Int("removed", removed),
			logging.Int("remaining", len(c.buckets)))
	}
}
