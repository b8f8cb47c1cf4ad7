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

package matching

import (
	"sort"

	"code.polarismarkets.io/polaris/types"
)

// PriceLevel holds the resting orders at one price, in sequence order
// (earliest first). The aggregate volume is maintained incrementally so
// depth queries don't walk the queue.
type PriceLevel struct {
	price  uint64
	orders []*types.Order
	volume uint64
}

// NewPriceLevel instantiates a new empty price level.
func NewPriceLevel(price uint64) *PriceLevel {
	return &PriceLevel{
		price:  price,
		orders: []*types.Order{},
	}
}

func (l *PriceLevel) addOrder(o *types.Order) {
	// orders arrive through the market's serialized queue, append keeps
	// the queue in sequence order
	l.orders = append(l.orders, o)
	l.volume += o.Remaining
}

// addOrderConserving re-inserts an order at its original position in the
// queue, by sequence number. Used when a failed settlement is unwound so
// the restored order keeps its time priority instead of re-queuing at the
// back.
func (l *PriceLevel) addOrderConserving(o *types.Order) {
	i := sort.Search(len(l.orders), func(i int) bool {
		return l.orders[i].SequenceNumber > o.SequenceNumber
	})
	l.orders = append(l.orders, nil)
	copy(l.orders[i+1:], l.orders[i:])
	l.orders[i] = o
	l.volume += o.Remaining
}

func (l *PriceLevel) removeOrder(index int) {
	l.reduceVolume(l.orders[index].Remaining)
	copy(l.orders[index:], l.orders[index+1:])
	l.orders[len(l.orders)-1] = nil
	l.orders = l.orders[:len(l.orders)-1]
}

func (l *PriceLevel) reduceVolume(reduceBy uint64) {
	if reduceBy > l.volume {
		// volume accounting is derived from remaining quantities, if it
		// ever goes negative the book is corrupt
		l.volume = 0
		return
	}
	l.volume -= reduceBy
}

// uncross matches the aggressive order against this level, earliest
// sequence first, at the level's price. It returns whether the aggressive
// order was fully filled, the trades produced and the passive orders
// impacted.
func (l *PriceLevel) uncross(agg *types.Order) (bool, []*types.Trade, []*types.Order, error) {
	var (
		trades         []*types.Trade
		impactedOrders []*types.Order
		toRemove       int
	)

	for _, order := range l.orders {
		size := min(agg.Remaining, order.Remaining)
		if size == 0 {
			return false, trades, impactedOrders, ErrInvariantTradeSize
		}

		trade := newTrade(agg, order, l.price, size)

		agg.Remaining -= size
		order.Remaining -= size
		l.reduceVolume(size)

		if order.Remaining == 0 {
			toRemove++
		}

		trades = append(trades, trade)
		impactedOrders = append(impactedOrders, order)

		if agg.Remaining == 0 {
			break
		}
	}

	// drop the fully consumed orders from the front of the queue
	if toRemove > 0 {
		copy(l.orders, l.orders[toRemove:])
		for i := len(l.orders) - toRemove; i < len(l.orders); i++ {
			l.orders[i] = nil
		}
		l.orders = l.orders[:len(l.orders)-toRemove]
	}

	return agg.Remaining == 0, trades, impactedOrders, nil
}

// newTrade builds a trade between the aggressive and the passive order,
// priced at the passive order's level (price improvement goes to the
// resting side). The trade id is assigned by the execution engine.
func newTrade(agg, passive *types.Order, price, size uint64) *types.Trade {
	return &types.Trade{
		MarketID:          agg.MarketID,
		MakerOrderID:      passive.ID,
		TakerOrderID:      agg.ID,
		MakerParty:        passive.Party,
		TakerParty:        agg.Party,
		Aggressor:         agg.Side,
		Price:             price,
		Size:              size,
		MatchedAtSequence: agg.SequenceNumber,
		SettlementStatus:  types.SettlementStatusPending,
	}
}

func min(x, y uint64) uint64 {
	if y < x {
		return y
	}
	return x
}
