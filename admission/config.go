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
	"time"

	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"
)

const namedLogger = "admission"

const (
	defaultOrdersPerSecond = 10
	defaultBurst           = 10
	defaultIdleTimeout     = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// Config represents the configuration of the admission package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	// OrdersPerSecond is the sustained per-party submission rate.
	OrdersPerSecond uint64 `long:"orders-per-second"`
	// Burst is the token bucket capacity, submissions above the sustained
	// rate allowed in a burst.
	Burst uint64 `long:"burst"`
	// IdleTimeout is how long an identity's bucket survives without
	// activity before the cleanup pass drops it.
	IdleTimeout     encoding.Duration `long:"idle-timeout"`
	CleanupInterval encoding.Duration `long:"cleanup-interval"`
}

// NewDefaultConfig creates an instance of the package specific
// configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:           encoding.LogLevel{Level: logging.InfoLevel},
		OrdersPerSecond: defaultOrdersPerSecond,
		Burst:           defaultBurst,
		IdleTimeout:     encoding.Duration{Duration: defaultIdleTimeout},
		CleanupInterval: encoding.Duration{Duration: defaultCleanupInterval},
	}
}
