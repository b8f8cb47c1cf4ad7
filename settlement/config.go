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

package settlement

import (
	"time"

	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"
)

const namedLogger = "settlement"

const (
	defaultQueueSize             = 4096
	defaultBatchSize             = 32
	defaultMaxBatchDelay         = 2 * time.Second
	defaultMaxRetries            = 5
	defaultRetryMinBackoff       = 500 * time.Millisecond
	defaultRetryMaxBackoff       = 30 * time.Second
	defaultSubmissionTimeout     = 15 * time.Second
	defaultFinalityWindow        = 10 * time.Minute
	defaultFinalityCheckInterval = 30 * time.Second
)

// Config represents the configuration of the settlement package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	// QueueSize bounds the intake of pending trades. When full, enqueueing
	// surfaces backpressure instead of growing without bound.
	QueueSize int `long:"queue-size"`
	// BatchSize is the maximum number of trades submitted in one on-chain
	// transaction, grouped per market.
	BatchSize int `long:"batch-size"`
	// MaxBatchDelay is how long a partial batch may wait before it is
	// flushed anyway.
	MaxBatchDelay encoding.Duration `long:"max-batch-delay"`

	// MaxRetries bounds the submission attempts for one batch before the
	// circuit breaks and its trades are failed and unwound.
	MaxRetries        uint64            `long:"max-retries"`
	RetryMinBackoff   encoding.Duration `long:"retry-min-backoff"`
	RetryMaxBackoff   encoding.Duration `long:"retry-max-backoff"`
	SubmissionTimeout encoding.Duration `long:"submission-timeout"`

	// FinalityWindow is how long a submitted batch may stay unconfirmed
	// before its trades are failed and unwound.
	FinalityWindow        encoding.Duration `long:"finality-window"`
	FinalityCheckInterval encoding.Duration `long:"finality-check-interval"`

	// OperatorKeyFile is the path to the hex encoded secp256k1 key the
	// chain submitter signs settlement transactions with, relative to
	// the node root unless absolute.
	OperatorKeyFile string `long:"operator-key-file"`
}

// NewDefaultConfig creates an instance of the package specific
// configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:                 encoding.LogLevel{Level: logging.InfoLevel},
		QueueSize:             defaultQueueSize,
		BatchSize:             defaultBatchSize,
		MaxBatchDelay:         encoding.Duration{Duration: defaultMaxBatchDelay},
		MaxRetries:            defaultMaxRetries,
		RetryMinBackoff:       encoding.Duration{Duration: defaultRetryMinBackoff},
		RetryMaxBackoff:       encoding.Duration{Duration: defaultRetryMaxBackoff},
		SubmissionTimeout:     encoding.Duration{Duration: defaultSubmissionTimeout},
		FinalityWindow:        encoding.Duration{Duration: defaultFinalityWindow},
		FinalityCheckInterval: encoding.Duration{Duration: defaultFinalityCheckInterval},
		OperatorKeyFile:       "operator.key",
	}
}
