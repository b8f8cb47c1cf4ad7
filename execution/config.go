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

package execution

import (
	"time"

	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/matching"
)

const namedLogger = "execution"

const (
	defaultOpQueueSize  = 1024
	defaultTickInterval = time.Second
)

// Config is the configuration of the execution package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	// OpQueueSize bounds each market's serialized operation queue.
	OpQueueSize int `long:"op-queue-size"`
	// TickInterval drives expiry sweeps and gauge refreshes.
	TickInterval encoding.Duration `long:"tick-interval"`

	Matching matching.Config
}

// NewDefaultConfig creates an instance of the package specific
// configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:        encoding.LogLevel{Level: logging.InfoLevel},
		OpQueueSize:  defaultOpQueueSize,
		TickInterval: encoding.Duration{Duration: defaultTickInterval},
		Matching:     matching.NewDefaultConfig(),
	}
}
