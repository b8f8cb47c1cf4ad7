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

package broker

import (
	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"
)

const namedLogger = "broker"

// SocketConfig configures the event stream socket used to forward events
// to an off-node consumer, the audit store typically.
type SocketConfig struct {
	Enabled encoding.Bool `long:"enabled"`
	// TransportType is the mangos transport, "tcp" or "inproc".
	TransportType string `long:"transport-type"`
	IP            string `long:"ip"`
	Port          int    `long:"port"`
}

// Config represents the configuration of the broker.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	SocketConfig SocketConfig `group:"Socket" namespace:"socket"`
	// SocketQueueSize bounds the stream buffer; events past it are
	// dropped rather than blocking the core.
	SocketQueueSize int `long:"socket-queue-size"`
}

// NewDefaultConfig creates an instance of config with default values.
func NewDefaultConfig() Config {
	return Config{
		Level: encoding.LogLevel{Level: logging.InfoLevel},
		SocketConfig: SocketConfig{
			Enabled:       false,
			TransportType: "tcp",
			IP:            "127.0.0.1",
			Port:          3105,
		},
		SocketQueueSize: 10000,
	}
}
