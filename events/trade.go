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

import (
	"context"

	"code.polarismarkets.io/polaris/types"
)

// Trade is raised when two orders cross. Used for the fill notification
// dispatcher and the audit store, both fire-and-forget.
type Trade struct {
	*Base
	t types.Trade
}

// NewTradeEvent copies the trade.
func NewTradeEvent(ctx context.Context, t *types.Trade) *Trade {
	return &Trade{
		Base: newBase(ctx, TradeEvent),
		t:    *t.Clone(),
	}
}

// Trade returns the trade payload.
func (t *Trade) Trade() *types.Trade {
	return &t.t
}

// TradeSettlement is raised on every settlement status transition of a
// trade.
type TradeSettlement struct {
	*Base
	t types.Trade
}

// NewTradeSettlementEvent copies the trade at the moment of transition.
func NewTradeSettlementEvent(ctx context.Context, t *types.Trade) *TradeSettlement {
	return &TradeSettlement{
		Base: newBase(ctx, TradeSettlementEvent),
		t:    *t.Clone(),
	}
}

// Trade returns the trade payload.
func (t *TradeSettlement) Trade() *types.Trade {
	return &t.t
}
