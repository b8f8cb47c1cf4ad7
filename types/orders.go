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

import (
	"fmt"
	"time"
)

// Side of the book an order belongs to. Buying the YES outcome token is a
// bid, selling it is an ask; NO exposure is expressed as the opposite side
// at the complement price before it reaches the core.
type Side int8

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType determines what happens to the unfilled remainder of an order
// once matching terminates.
type OrderType int8

const (
	OrderTypeUnspecified OrderType = iota
	// OrderTypeLimit rests any remainder on the book.
	OrderTypeLimit
	// OrderTypeIOC (immediate or cancel) discards any remainder, it never
	// rests.
	OrderTypeIOC
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeIOC:
		return "ioc"
	default:
		return "unspecified"
	}
}

// OrderStatus is derived from the remaining quantity and any explicit
// cancel/expire action.
type OrderStatus int8

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusOpen
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusExpired
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusOpen:
		return "open"
	case OrderStatusPartiallyFilled:
		return "partial"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusExpired:
		return "expired"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// Order is a request to buy or sell a quantity of outcome tokens at a price
// expressed in ticks (basis points of one full unit of collateral).
type Order struct {
	ID        string
	MarketID  string
	Party     string
	Side      Side
	Price     uint64
	Size      uint64
	Remaining uint64
	Type      OrderType
	Status    OrderStatus
	Nonce     uint64
	Signature []byte

	// SequenceNumber is assigned when the order is admitted into its
	// market's serialized queue. It is strictly increasing per market and
	// is the only tie-break used by the book.
	SequenceNumber uint64

	CreatedAt time.Time
	// ExpiresAt is zero for orders which never expire.
	ExpiresAt time.Time
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	cpy := *o
	if o.Signature != nil {
		cpy.Signature = make([]byte, len(o.Signature))
		copy(cpy.Signature, o.Signature)
	}
	return &cpy
}

// IsFinished returns true once the order can no longer trade.
func (o *Order) IsFinished() bool {
	return o.Status == OrderStatusFilled ||
		o.Status == OrderStatusCancelled ||
		o.Status == OrderStatusExpired ||
		o.Status == OrderStatusRejected
}

// IsExpired returns whether the order has an expiry in the past.
func (o *Order) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

// UpdateStatus re-derives the open/partial/filled status from the remaining
// quantity. Explicit cancel/expire statuses are never overwritten here.
func (o *Order) UpdateStatus() {
	switch {
	case o.Remaining == 0:
		o.Status = OrderStatusFilled
	case o.Remaining < o.Size:
		o.Status = OrderStatusPartiallyFilled
	default:
		o.Status = OrderStatusOpen
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("id(%s) market(%s) party(%s) side(%s) price(%d) size(%d) remaining(%d) type(%s) status(%s) seq(%d)",
		o.ID, o.MarketID, o.Party, o.Side, o.Price, o.Size, o.Remaining, o.Type, o.Status, o.SequenceNumber)
}

// OrderSubmission is the external order submission request.
type OrderSubmission struct {
	MarketID  string
	Party     string
	Side      Side
	Price     uint64
	Size      uint64
	Type      OrderType
	Nonce     uint64
	Signature []byte
	ExpiresAt time.Time
}

// IntoOrder builds an order from the submission. The ID and sequence number
// are assigned by the execution engine.
func (s *OrderSubmission) IntoOrder(now time.Time) *Order {
	return &Order{
		MarketID:  s.MarketID,
		Party:     s.Party,
		Side:      s.Side,
		Price:     s.Price,
		Size:      s.Size,
		Remaining: s.Size,
		Type:      s.Type,
		Status:    OrderStatusOpen,
		Nonce:     s.Nonce,
		Signature: s.Signature,
		CreatedAt: now,
		ExpiresAt: s.ExpiresAt,
	}
}

// OrderCancellation is the external cancellation request.
type OrderCancellation struct {
	OrderID   string
	MarketID  string
	Party     string
	Signature []byte
}

// OrderConfirmation wraps the result of a successful order submission:
// the (possibly resting) order, the trades it produced and the passive
// orders it impacted.
type OrderConfirmation struct {
	Order                 *Order
	Trades                []*Trade
	PassiveOrdersAffected []*Order
}

// Resting returns whether any part of the submitted order stayed on the book.
func (c *OrderConfirmation) Resting() bool {
	return c.Order.Status == OrderStatusOpen || c.Order.Status == OrderStatusPartiallyFilled
}

// OrderCancellationConfirmation wraps the cancelled order.
type OrderCancellationConfirmation struct {
	Order *Order
}
