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
	"testing"
	"time"

	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"

	"github.com/stretchr/testify/assert"
)

func getTestController(t *testing.T, ordersPerSecond, burst uint64) *Controller {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.OrdersPerSecond = ordersPerSecond
	cfg.Burst = burst
	cfg.IdleTimeout = encoding.Duration{Duration: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, logging.NewTestLogger(), cfg)
}

func TestAllowWithinBurst(t *testing.T) {
	c := getTestController(t, 10, 10)

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	// 15 submissions in the same second, exactly the burst passes
	accepted := 0
	for i := 0; i < 15; i++ {
		if c.Allow("party-1") {
			accepted++
		}
	}
	assert.Equal(t, 10, accepted)
}

func TestTokensRefillAtSustainedRate(t *testing.T) {
	c := getTestController(t, 10, 10)

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		assert.True(t, c.Allow("party-1"))
	}
	assert.False(t, c.Allow("party-1"))

	// half a second refills five tokens
	now = now.Add(500 * time.Millisecond)
	for i := 0; i < 5; i++ {
		assert.True(t, c.Allow("party-1"), "refilled token %d", i)
	}
	assert.False(t, c.Allow("party-1"))
}

func TestRefillCapsAtBurst(t *testing.T) {
	c := getTestController(t, 10, 5)

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	assert.True(t, c.Allow("party-1"))

	// a long idle period never accumulates more than the bucket capacity
	now = now.Add(time.Hour)
	accepted := 0
	for i := 0; i < 10; i++ {
		if c.Allow("party-1") {
			accepted++
		}
	}
	assert.Equal(t, 5, accepted)
}

func TestPartiesAreIsolated(t *testing.T) {
	c := getTestController(t, 10, 2)

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	assert.True(t, c.Allow("party-1"))
	assert.True(t, c.Allow("party-1"))
	assert.False(t, c.Allow("party-1"))

	// a throttled party does not affect anyone else
	assert.True(t, c.Allow("party-2"))
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	c := getTestController(t, 10, 10)

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	c.Allow("party-1")
	c.Allow("party-2")
	assert.Len(t, c.buckets, 2)

	now = now.Add(30 * time.Second)
	c.Allow("party-2")

	now = now.Add(45 * time.Second)
	c.cleanup()

	// party-1 idled past the timeout, party-2 is still live
	assert.Len(t, c.buckets, 1)
	_, ok := c.buckets["party-2"]
	assert.True(t, ok)
}
