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

package evtmonitor

import (
	"time"

	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"
)

const namedLogger = "evtmonitor"

const (
	defaultPollInterval           = 15 * time.Second
	defaultRetryBackoff           = 5 * time.Second
	defaultConfirmationDepth      = 6
	defaultMaxBlockRange          = 2000
	defaultMaxConsecutiveFailures = 20
	defaultStalenessThreshold     = 10 * time.Minute
)

// Config represents the configuration of the chain event monitor.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	// NodeEndpoint is the RPC endpoint of the Ethereum node the monitor
	// polls.
	NodeEndpoint string `long:"node-endpoint"`
	// ContractAddress is the address of the settlement contract whose logs
	// are filtered.
	ContractAddress string `long:"contract-address"`
	// StartBlock is the block the monitor starts from when no checkpoint
	// exists yet.
	StartBlock uint64 `long:"start-block"`

	PollInterval encoding.Duration `long:"poll-interval"`
	RetryBackoff encoding.Duration `long:"retry-backoff"`
	// ConfirmationDepth is how many blocks behind the chain head the
	// monitor stays. Events are only applied once buried this deep.
	ConfirmationDepth uint64 `long:"confirmation-depth"`
	// MaxBlockRange bounds the span of a single log filter call when
	// catching up after downtime.
	MaxBlockRange uint64 `long:"max-block-range"`
	// MaxConsecutiveFailures is how many polls may fail in a row before
	// the monitor gives up and goes Disconnected.
	MaxConsecutiveFailures int `long:"max-consecutive-failures"`
	// StalenessThreshold is how far behind wall clock the last processed
	// block's timestamp may fall before the node reports unhealthy.
	StalenessThreshold encoding.Duration `long:"staleness-threshold"`
}

// NewDefaultConfig creates an instance of the package specific
// configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:                  encoding.LogLevel{Level: logging.InfoLevel},
		PollInterval:           encoding.Duration{Duration: defaultPollInterval},
		RetryBackoff:           encoding.Duration{Duration: defaultRetryBackoff},
		ConfirmationDepth:      defaultConfirmationDepth,
		MaxBlockRange:          defaultMaxBlockRange,
		MaxConsecutiveFailures: defaultMaxConsecutiveFailures,
		StalenessThreshold:     encoding.Duration{Duration: defaultStalenessThreshold},
	}
}
