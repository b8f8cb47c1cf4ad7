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

package logging

import (
	"math/big"
	"time"

	"go.uber.org/zap"
)

// String constructs a field with the given key and value.
func String(key, val string) zap.Field {
	return zap.String(key, val)
}

// Strings constructs a field with the given key and value.
func Strings(key string, val []string) zap.Field {
	return zap.Strings(key, val)
}

// Bool constructs a field with the given key and value.
func Bool(key string, val bool) zap.Field {
	return zap.Bool(key, val)
}

// Int constructs a field with the given key and value.
func Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

// Int64 constructs a field with the given key and value.
func Int64(key string, val int64) zap.Field {
	return zap.Int64(key, val)
}

// Uint32 constructs a field with the given key and value.
func Uint32(key string, val uint32) zap.Field {
	return zap.Uint32(key, val)
}

// Uint64 constructs a field with the given key and value.
func Uint64(key string, val uint64) zap.Field {
	return zap.Uint64(key, val)
}

// BigInt constructs a field with the given key and value.
func BigInt(key string, val *big.Int) zap.Field {
	return zap.String(key, val.String())
}

// Duration constructs a field with the given key and value.
func Duration(key string, val time.Duration) zap.Field {
	return zap.Duration(key, val)
}

// Time constructs a field with the given key and value.
func Time(key string, val time.Time) zap.Field {
	return zap.Time(key, val)
}

// Error constructs a field that carries an error.
func Error(err error) zap.Field {
	return zap.Error(err)
}

// Reflect constructs a field by running reflection over all the field values.
func Reflect(key string, val interface{}) zap.Field {
	return zap.Reflect(key, val)
}

// MarketID constructs a field with the well-known market id key.
func MarketID(id string) zap.Field {
	return zap.String("market-id", id)
}

// OrderID constructs a field with the well-known order id key.
func OrderID(id string) zap.Field {
	return zap.String("order-id", id)
}

// TradeID constructs a field with the well-known trade id key.
func TradeID(id string) zap.Field {
	return zap.String("trade-id", id)
}

// Party constructs a field with the well-known party key.
func Party(party string) zap.Field {
	return zap.String("party", party)
}

// TxHash constructs a field with the well-known transaction hash key.
func TxHash(hash string) zap.Field {
	return zap.String("tx-hash", hash)
}
