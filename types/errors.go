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

package types

// OrderError is a validation rejection. It carries a stable reason code for
// callers and is always raised before any book state is mutated.
type OrderError struct {
	Code    string
	Message string
}

func (e OrderError) Error() string {
	return e.Message
}

var (
	ErrInvalidMarketID = OrderError{
		Code:    "INVALID_MARKET_ID",
		Message: "order market id is invalid or unknown",
	}
	ErrMarketClosed = OrderError{
		Code:    "MARKET_CLOSED",
		Message: "market is closed for trading",
	}
	ErrMarketQuarantined = OrderError{
		Code:    "MARKET_QUARANTINED",
		Message: "market is quarantined pending operator intervention",
	}
	ErrInvalidSignature = OrderError{
		Code:    "INVALID_SIGNATURE",
		Message: "order signature does not match the submitting party",
	}
	ErrStaleNonce = OrderError{
		Code:    "STALE_NONCE",
		Message: "order nonce is not greater than the last one seen for the party",
	}
	ErrInvalidPrice = OrderError{
		Code:    "INVALID_PRICE",
		Message: "order price is outside the valid tick range",
	}
	ErrInvalidSize = OrderError{
		Code:    "INVALID_SIZE",
		Message: "order size must be positive",
	}
	ErrInvalidOrderType = OrderError{
		Code:    "INVALID_ORDER_TYPE",
		Message: "order type is not supported",
	}
	ErrInsufficientCollateral = OrderError{
		Code:    "INSUFFICIENT_COLLATERAL",
		Message: "party does not hold enough collateral for the order",
	}
	ErrOrderNotFound = OrderError{
		Code:    "ORDER_NOT_FOUND",
		Message: "order not found",
	}
	ErrNotOrderOwner = OrderError{
		Code:    "NOT_ORDER_OWNER",
		Message: "only the owner of an order may cancel it",
	}
	ErrOrderRateLimited = OrderError{
		Code:    "RATE_LIMITED",
		Message: "party exceeded the configured submission rate",
	}
	ErrSettlementBackpressure = OrderError{
		Code:    "SETTLEMENT_BACKPRESSURE",
		Message: "settlement queue is full, matched trades could not be enqueued",
	}
	ErrOrderExpired = OrderError{
		Code:    "ORDER_EXPIRED",
		Message: "order expiry is in the past",
	}
)
