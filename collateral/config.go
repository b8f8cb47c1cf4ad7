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

package collateral

import (
	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/logging"
)

const namedLogger = "collateral"

// Config is the configuration of the collateral package.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`
	// Permissive disables the collateral check entirely. Only sensible on
	// networks where margin is enforced by the settlement contract alone.
	Permissive encoding.Bool `long:"permissive"`
}

// NewDefaultConfig creates an instance of the package specific
// configuration.
func NewDefaultConfig() Config {
	return Config{
		Level: encoding.LogLevel{Level: logging.InfoLevel},
	}
}
