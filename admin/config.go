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

package admin

import (
	"path/filepath"

	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"
)

const namedLogger = "admin"

// ServerConfig contains the configuration for the local admin socket.
type ServerConfig struct {
	SocketPath string `long:"socket-path"`
	HTTPPath   string `long:"http-path"`
}

// Config represents the configuration of the admin package.
type Config struct {
	Level  encoding.LogLevel `long:"log-level"`
	Server ServerConfig      `group:"Server" namespace:"server"`
}

// NewDefaultConfig creates an instance of the package specific
// configuration.
func NewDefaultConfig() Config {
	return Config{
		Level: encoding.LogLevel{Level: logging.InfoLevel},
		Server: ServerConfig{
			SocketPath: filepath.Join("/tmp", "polaris.sock"),
			HTTPPath:   "/rpc",
		},
	}
}
