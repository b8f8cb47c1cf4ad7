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

package events

import "context"

// Type discriminates event-bus events.
type Type int

const (
	// All is used by subscribers to receive every event, it has no
	// corresponding payload.
	All Type = iota
	OrderEvent
	TradeEvent
	TradeSettlementEvent
	MarketQuarantinedEvent
	MarketSettledEvent
)

var eventStrings = map[Type]string{
	All:                    "ALL",
	OrderEvent:             "OrderEvent",
	TradeEvent:             "TradeEvent",
	TradeSettlementEvent:   "TradeSettlementEvent",
	MarketQuarantinedEvent: "MarketQuarantinedEvent",
	MarketSettledEvent:     "MarketSettledEvent",
}

func (t Type) String() string {
	if s, ok := eventStrings[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Base is the common denominator all event-bus events share.
type Base struct {
	ctx context.Context
	et  Type
}

// Event is the interface the broker accepts.
type Event interface {
	Type() Type
	Context() context.Context
}

func newBase(ctx context.Context, t Type) *Base {
	return &Base{
		ctx: ctx,
		et:  t,
	}
}

// Type returns the event type.
func (b Base) Type() Type {
	return b.et
}

// Context returns the context the event was raised with.
func (b Base) Context() context.Context {
	return b.ctx
}
