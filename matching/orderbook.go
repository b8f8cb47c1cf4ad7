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
	"time"

	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"
)

// OrderBook is the per-market price-time-ordered store of resting orders.
// It is a pure sorted-structure abstraction: validation of signatures,
// nonces and market eligibility happens in the execution engine before an
// order ever reaches the book. The book is not safe for concurrent use,
// each market's worker is its single writer.
type OrderBook struct {
	log *logging.Logger
	Config

	marketID        string
	buy             *OrderBookSide
	sell            *OrderBookSide
	lastTradedPrice uint64

	// ordersByID tracks all resting orders for O(1) cancel lookup.
	ordersByID     map[string]*types.Order
	expiringOrders *ExpiringOrders
}

// NewOrderBook creates a new empty order book for the given market.
func NewOrderBook(log *logging.Logger, config Config, marketID string) *OrderBook {
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	return &OrderBook{
		log:            log,
		Config:         config,
		marketID:       marketID,
		buy:            &OrderBookSide{side: types.SideBuy, log: log},
		sell:           &OrderBookSide{side: types.SideSell, log: log},
		ordersByID:     map[string]*types.Order{},
		expiringOrders: NewExpiringOrders(),
	}
}

// MarketID returns the id of the market this book belongs to.
func (b *OrderBook) MarketID() string {
	return b.marketID
}

// BestBidPriceAndVolume returns the top of the buy side.
func (b *OrderBook) BestBidPriceAndVolume() (uint64, uint64, error) {
	return b.buy.BestPriceAndVolume()
}

// BestAskPriceAndVolume returns the top of the sell side.
func (b *OrderBook) BestAskPriceAndVolume() (uint64, uint64, error) {
	return b.sell.BestPriceAndVolume()
}

// LastTradedPrice returns the price of the last trade uncrossed on the
// book, zero if the book never traded.
func (b *OrderBook) LastTradedPrice() uint64 {
	return b.lastTradedPrice
}

// GetOrderByID returns a resting order by id.
func (b *OrderBook) GetOrderByID(orderID string) (*types.Order, error) {
	order, exists := b.ordersByID[orderID]
	if !exists {
		return nil, types.ErrOrderNotFound
	}
	return order, nil
}

// GetOrderCount returns the number of resting orders.
func (b *OrderBook) GetOrderCount() int64 {
	return b.buy.getOrderCount() + b.sell.getOrderCount()
}

// GetVolumeOnSide returns the total resting volume on one side.
func (b *OrderBook) GetVolumeOnSide(side types.Side) int64 {
	return b.sideFor(side).getTotalVolume()
}

// SubmitOrder inserts or matches the given validated order against the
// book. Matching is a continuous double auction: while the incoming order
// crosses the opposite best price it trades at the resting level's price,
// earliest sequence first. A Limit remainder rests, an IOC remainder is
// discarded.
func (b *OrderBook) SubmitOrder(order *types.Order) (*types.OrderConfirmation, error) {
	if err := b.validateOrder(order); err != nil {
		return nil, err
	}
	if _, exists := b.ordersByID[order.ID]; exists {
		return nil, ErrOrderAlreadyExists
	}

	trades, impacted, err := b.sideFor(order.Side.Opposite()).uncross(order)
	if err != nil {
		return nil, err
	}

	for _, impact := range impacted {
		impact.UpdateStatus()
		if impact.Remaining == 0 {
			b.forget(impact)
		}
	}

	if order.Remaining > 0 {
		switch order.Type {
		case types.OrderTypeLimit:
			b.sideFor(order.Side).addOrder(order)
			b.track(order)
			order.UpdateStatus()
		case types.OrderTypeIOC:
			// any remainder is discarded, it never rests
			order.Status = types.OrderStatusCancelled
		}
	} else {
		order.Status = types.OrderStatusFilled
	}

	if len(trades) > 0 {
		b.lastTradedPrice = trades[len(trades)-1].Price
	}

	if err := b.checkNotCrossed(); err != nil {
		return nil, err
	}

	if bool(b.LogPriceLevelsDebug) && b.log.IsDebug() {
		b.log.Debug("order book state after submission",
			logging.MarketID(b.marketID),
			logging.Int64("order-count", b.GetOrderCount()),
			logging.Int("trades", len(trades)))
	}

	return &types.OrderConfirmation{
		Order:                 order,
		Trades:                trades,
		PassiveOrdersAffected: impacted,
	}, nil
}

// CancelOrder removes a resting order from the book and marks it
// cancelled.
func (b *OrderBook) CancelOrder(orderID string) (*types.OrderCancellationConfirmation, error) {
	order, exists := b.ordersByID[orderID]
	if !exists {
		return nil, types.ErrOrderNotFound
	}

	if _, err := b.sideFor(order.Side).RemoveOrder(order); err != nil {
		return nil, err
	}
	b.forget(order)
	order.Status = types.OrderStatusCancelled

	if bool(b.LogRemovedOrdersDebug) && b.log.IsDebug() {
		b.log.Debug("order removed from the book",
			logging.MarketID(b.marketID),
			logging.OrderID(order.ID),
			logging.String("reason", "cancelled"))
	}

	return &types.OrderCancellationConfirmation{Order: order}, nil
}

// ReinsertOrder restores an order removed by a trade which was later
// unwound by settlement failure. The order re-enters its price level at
// its original sequence priority, never at the back of the queue.
func (b *OrderBook) ReinsertOrder(order *types.Order) error {
	if err := b.validateOrder(order); err != nil {
		return err
	}
	if _, exists := b.ordersByID[order.ID]; exists {
		return ErrOrderAlreadyExists
	}

	b.sideFor(order.Side).addOrderConserving(order)
	b.track(order)
	order.UpdateStatus()

	return b.checkNotCrossed()
}

// RemoveExpiredOrders sweeps all resting orders with an expiry at or
// before the given time and returns them, marked expired.
func (b *OrderBook) RemoveExpiredOrders(now time.Time) []*types.Order {
	expired := []*types.Order{}
	for _, orderID := range b.expiringOrders.Expire(now.UnixNano()) {
		order, exists := b.ordersByID[orderID]
		if !exists {
			continue
		}
		if _, err := b.sideFor(order.Side).RemoveOrder(order); err != nil {
			b.log.Error("expired order was indexed but not on the book",
				logging.MarketID(b.marketID),
				logging.OrderID(orderID),
				logging.Error(err))
			continue
		}
		delete(b.ordersByID, orderID)
		order.Status = types.OrderStatusExpired
		expired = append(expired, order)
	}

	if len(expired) > 0 && b.log.IsDebug() {
		b.log.Debug("expired orders removed from the book",
			logging.MarketID(b.marketID),
			logging.Int("count", len(expired)))
	}
	return expired
}

// RestoreOrderVolume gives quantity consumed by an unwound trade back to
// an order still resting on the book, keeping the price level volume in
// step with the order's remaining.
func (b *OrderBook) RestoreOrderVolume(orderID string, qty uint64) error {
	order, exists := b.ordersByID[orderID]
	if !exists {
		return types.ErrOrderNotFound
	}
	if order.Remaining+qty > order.Size {
		return ErrInvariantRemaining
	}
	level := b.sideFor(order.Side).getPriceLevelIfExists(order.Price)
	if level == nil {
		return ErrPriceNotFound
	}

	order.Remaining += qty
	level.volume += qty
	order.UpdateStatus()
	return nil
}

// Settled empties the book when the market resolves on chain. Every
// resting order is cancelled and returned in submission order.
func (b *OrderBook) Settled() []*types.Order {
	cancelled := make([]*types.Order, 0, len(b.ordersByID))
	for _, order := range b.ordersByID {
		order.Status = types.OrderStatusCancelled
		cancelled = append(cancelled, order)
	}
	sort.Slice(cancelled, func(i, j int) bool {
		return cancelled[i].SequenceNumber < cancelled[j].SequenceNumber
	})

	b.ordersByID = map[string]*types.Order{}
	b.buy = &OrderBookSide{side: types.SideBuy, log: b.log}
	b.sell = &OrderBookSide{side: types.SideSell, log: b.log}
	b.expiringOrders = NewExpiringOrders()

	return cancelled
}

func (b *OrderBook) validateOrder(order *types.Order) error {
	if order.MarketID != b.marketID {
		return ErrInvalidMarketID
	}
	if order.Remaining > order.Size {
		return ErrInvariantRemaining
	}
	return nil
}

// checkNotCrossed verifies the resting book is not crossed once matching
// has terminated. A crossed pair left resting is a fatal invariant
// violation, never corrected silently.
func (b *OrderBook) checkNotCrossed() error {
	bestBid, _, err := b.buy.BestPriceAndVolume()
	if err != nil {
		return nil
	}
	bestAsk, _, err := b.sell.BestPriceAndVolume()
	if err != nil {
		return nil
	}
	if bestBid >= bestAsk {
		b.log.Error("order book is crossed after matching",
			logging.MarketID(b.marketID),
			logging.Uint64("best-bid", bestBid),
			logging.Uint64("best-ask", bestAsk))
		return ErrInvariantCrossedBook
	}
	return nil
}

func (b *OrderBook) sideFor(side types.Side) *OrderBookSide {
	if side == types.SideBuy {
		return b.buy
	}
	return b.sell
}

func (b *OrderBook) track(order *types.Order) {
	b.ordersByID[order.ID] = order
	if !order.ExpiresAt.IsZero() {
		b.expiringOrders.Insert(order.ID, order.ExpiresAt.UnixNano())
	}
}

func (b *OrderBook) forget(order *types.Order) {
	delete(b.ordersByID, order.ID)
	if !order.ExpiresAt.IsZero() {
		b.expiringOrders.RemoveOrder(order.ExpiresAt.UnixNano(), order.ID)
	}
}
