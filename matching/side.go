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

	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"

	"github.com/pkg/errors"
)

// ErrPriceNotFound signals that a price was not found on the book side.
var ErrPriceNotFound = errors.New("price-volume pair not found")

// OrderBookSide represents a side of the book, either Sell or Buy.
// Levels are kept price-sorted with the best level at the end of the slice:
// ascending for buys, descending for sells.
type OrderBookSide struct {
	side   types.Side
	log    *logging.Logger
	levels []*PriceLevel
}

func (s *OrderBookSide) addOrder(o *types.Order) {
	s.getPriceLevel(o.Price).addOrder(o)
}

func (s *OrderBookSide) addOrderConserving(o *types.Order) {
	s.getPriceLevel(o.Price).addOrderConserving(o)
}

// BestPriceAndVolume returns the top of book price and volume.
// It returns an error if the book side is empty.
func (s *OrderBookSide) BestPriceAndVolume() (uint64, uint64, error) {
	if len(s.levels) <= 0 {
		return 0, 0, errors.New("no orders on the book side")
	}
	last := len(s.levels) - 1
	return s.levels[last].price, s.levels[last].volume, nil
}

// RemoveOrder removes an order from the book side, erasing its price level
// if it was the last order there.
func (s *OrderBookSide) RemoveOrder(o *types.Order) (*types.Order, error) {
	i := s.levelIndex(o.Price)
	if i >= len(s.levels) || s.levels[i].price != o.Price {
		return nil, types.ErrOrderNotFound
	}

	oidx := -1
	for idx, order := range s.levels[i].orders {
		if order.ID == o.ID {
			oidx = idx
			break
		}
	}
	if oidx == -1 {
		return nil, types.ErrOrderNotFound
	}

	order := s.levels[i].orders[oidx]
	s.levels[i].removeOrder(oidx)

	if len(s.levels[i].orders) <= 0 {
		s.levels = s.levels[:i+copy(s.levels[i:], s.levels[i+1:])]
	}

	return order, nil
}

func (s *OrderBookSide) levelIndex(price uint64) int {
	if s.side == types.SideBuy {
		// buy side levels are ordered ascending
		return sort.Search(len(s.levels), func(i int) bool { return s.levels[i].price >= price })
	}
	// sell side levels are ordered descending
	return sort.Search(len(s.levels), func(i int) bool { return s.levels[i].price <= price })
}

func (s *OrderBookSide) getPriceLevelIfExists(price uint64) *PriceLevel {
	i := s.levelIndex(price)
	if i < len(s.levels) && s.levels[i].price == price {
		return s.levels[i]
	}
	return nil
}

func (s *OrderBookSide) getPriceLevel(price uint64) *PriceLevel {
	i := s.levelIndex(price)
	if i < len(s.levels) && s.levels[i].price == price {
		return s.levels[i]
	}

	// insert a new level in place, the append reallocates sufficiently
	// before the slice shift
	level := NewPriceLevel(price)
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level
	return level
}

// GetVolume returns the volume at the given price level.
func (s *OrderBookSide) GetVolume(price uint64) (uint64, error) {
	priceLevel := s.getPriceLevelIfExists(price)
	if priceLevel == nil {
		return 0, ErrPriceNotFound
	}
	return priceLevel.volume, nil
}

// uncross matches the aggressive order against this side of the book while
// the price still crosses, best level first. Matching happens at the
// resting level's price.
func (s *OrderBookSide) uncross(agg *types.Order) ([]*types.Trade, []*types.Order, error) {
	var (
		trades         []*types.Trade
		impactedOrders []*types.Order
		checkPrice     func(uint64) bool
	)

	if agg.Side == types.SideSell {
		// selling crosses any bid at or above the ask price
		checkPrice = func(levelPrice uint64) bool { return levelPrice >= agg.Price }
	} else {
		checkPrice = func(levelPrice uint64) bool { return levelPrice <= agg.Price }
	}

	var (
		idx     = len(s.levels) - 1
		filled  bool
		ntrades []*types.Trade
		nimpact []*types.Order
		err     error
	)

	// iterate from the end, removing empty levels from the back of the
	// slice is cheaper than from the front
	for !filled && idx >= 0 && checkPrice(s.levels[idx].price) {
		filled, ntrades, nimpact, err = s.levels[idx].uncross(agg)
		trades = append(trades, ntrades...)
		impactedOrders = append(impactedOrders, nimpact...)
		if err != nil {
			break
		}
		if len(s.levels[idx].orders) <= 0 {
			idx--
		}
	}

	// nil out the emptied price levels and resize the slice
	if idx < 0 || len(s.levels[idx].orders) > 0 {
		idx++
	}
	if idx < len(s.levels) {
		for i := idx; i < len(s.levels); i++ {
			s.levels[i] = nil
		}
		s.levels = s.levels[:idx]
	}

	return trades, impactedOrders, err
}

func (s *OrderBookSide) getLevels() []*PriceLevel {
	return s.levels
}

func (s *OrderBookSide) getOrderCount() int64 {
	var orderCount int64
	for _, level := range s.levels {
		orderCount += int64(len(level.orders))
	}
	return orderCount
}

func (s *OrderBookSide) getTotalVolume() int64 {
	var volume int64
	for _, level := range s.levels {
		volume += int64(level.volume)
	}
	return volume
}
