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

package execution

import (
	"context"
	"sync/atomic"
	"time"

	"code.polarismarkets.io/polaris/broker"
	"code.polarismarkets.io/polaris/crypto"
	"code.polarismarkets.io/polaris/events"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/matching"
	"code.polarismarkets.io/polaris/metrics"
	"code.polarismarkets.io/polaris/types"

	"github.com/pkg/errors"
)

// priceTickBound is the exclusive upper bound of the price range. Prices
// are probabilities in basis points, 0 and 10000 are certainty and cannot
// trade.
const priceTickBound = 10000

type op func()

// Market owns all state of one binary-outcome market: its order book, the
// per-party nonce high-water marks and the order archive used for
// settlement unwinds. A single goroutine drains the op queue, so nothing
// in here needs a lock and matching is deterministic in arrival order.
type Market struct {
	log *logging.Logger
	cfg Config

	mkt        *types.Market
	book       *matching.OrderBook
	broker     broker.Interface
	bridge     SettlementBridge
	collateral CollateralOracle

	ops   chan op
	idgen func() string
	now   func() time.Time

	// status mirrors mkt.Status for lock free reads outside the worker
	status atomic.Int32

	seq    uint64
	nonces map[string]uint64
	// every order ever accepted, for unwinds after the book forgot them
	byID map[string]*types.Order
	// trades matched but not yet accepted by the settlement bridge
	overflow []*types.Trade
}

func newMarket(log *logging.Logger, cfg Config, mkt *types.Market, bkr broker.Interface, bridge SettlementBridge, collateral CollateralOracle, idgen func() string, now func() time.Time) *Market {
	m := &Market{
		log:        log,
		cfg:        cfg,
		mkt:        mkt,
		book:       matching.NewOrderBook(log, cfg.Matching, mkt.ID),
		broker:     bkr,
		bridge:     bridge,
		collateral: collateral,
		ops:        make(chan op, cfg.OpQueueSize),
		idgen:      idgen,
		now:        now,
		nonces:     map[string]uint64{},
		byID:       map[string]*types.Order{},
	}
	m.status.Store(int32(mkt.Status))
	return m
}

// Status returns the market status, safe to call from any goroutine.
func (m *Market) Status() types.MarketStatus {
	return types.MarketStatus(m.status.Load())
}

func (m *Market) setStatus(s types.MarketStatus) {
	m.mkt.Status = s
	m.status.Store(int32(s))
}

// run drains the op queue until the context is cancelled. It is the only
// goroutine ever touching the book.
func (m *Market) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-m.ops:
			f()
		}
	}
}

// do schedules f on the market's worker and waits for it to run.
func (m *Market) do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		f()
	}
	select {
	case m.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitOrder validates and matches one order on the market's worker.
func (m *Market) SubmitOrder(ctx context.Context, sub *types.OrderSubmission) (*types.OrderConfirmation, error) {
	var (
		conf *types.OrderConfirmation
		err  error
	)
	if derr := m.do(ctx, func() { conf, err = m.submitOrder(sub) }); derr != nil {
		return nil, derr
	}
	return conf, err
}

func (m *Market) submitOrder(sub *types.OrderSubmission) (*types.OrderConfirmation, error) {
	timer := time.Now()
	defer metrics.EngineTimeCounterAdd(timer, m.mkt.ID, "execution", "SubmitOrder")

	now := m.now()
	if err := m.validateSubmission(sub, now); err != nil {
		m.reject(sub, err)
		return nil, err
	}

	// matched trades which could not reach the settlement bridge park here
	// and block new submissions until drained
	if len(m.overflow) > 0 {
		m.flushOverflow()
		if len(m.overflow) > 0 {
			m.reject(sub, types.ErrSettlementBackpressure)
			return nil, types.ErrSettlementBackpressure
		}
	}

	order := sub.IntoOrder(now)
	order.ID = m.idgen()
	m.seq++
	order.SequenceNumber = m.seq

	conf, err := m.book.SubmitOrder(order)
	if err != nil {
		if matching.IsInvariantViolation(err) {
			m.quarantine(err)
			return nil, types.ErrMarketQuarantined
		}
		m.reject(sub, err)
		return nil, err
	}

	m.nonces[sub.Party] = sub.Nonce
	m.byID[order.ID] = order

	evts := make([]events.Event, 0, 1+len(conf.Trades)+len(conf.PassiveOrdersAffected))
	evts = append(evts, events.NewOrderEvent(context.Background(), order))
	for _, impacted := range conf.PassiveOrdersAffected {
		evts = append(evts, events.NewOrderEvent(context.Background(), impacted))
	}
	for _, trade := range conf.Trades {
		trade.ID = m.idgen()
		trade.MatchedAtSequence = order.SequenceNumber
		evts = append(evts, events.NewTradeEvent(context.Background(), trade))
	}
	m.broker.SendBatch(evts)

	metrics.OrderCounterInc(m.mkt.ID, "accepted")
	metrics.TradeCounterAdd(len(conf.Trades), m.mkt.ID)
	if conf.Resting() {
		metrics.OrderGaugeAdd(1, m.mkt.ID)
	}
	metrics.OrderGaugeAdd(-filledPassiveCount(conf.PassiveOrdersAffected), m.mkt.ID)

	if len(conf.Trades) > 0 {
		m.handoff(conf.Trades)
	}

	if m.log.IsDebug() {
		m.log.Debug("order processed",
			logging.MarketID(m.mkt.ID),
			logging.OrderID(order.ID),
			logging.Party(order.Party),
			logging.Int("trades", len(conf.Trades)),
		)
	}
	return conf, nil
}

func (m *Market) validateSubmission(sub *types.OrderSubmission, now time.Time) error {
	if m.mkt.Status == types.MarketStatusQuarantined {
		return types.ErrMarketQuarantined
	}
	if !m.mkt.CanTrade(now) {
		return types.ErrMarketClosed
	}
	if sub.Type != types.OrderTypeLimit && sub.Type != types.OrderTypeIOC {
		return types.ErrInvalidOrderType
	}
	if sub.Price == 0 || sub.Price >= priceTickBound {
		return types.ErrInvalidPrice
	}
	if sub.Size == 0 {
		return types.ErrInvalidSize
	}
	if !sub.ExpiresAt.IsZero() && !now.Before(sub.ExpiresAt) {
		return types.ErrOrderExpired
	}

	digest := crypto.OrderDigest(sub.MarketID, sub.Party, int8(sub.Side), sub.Price, sub.Size, sub.Nonce, int8(sub.Type))
	ok, err := crypto.VerifySignature(digest, sub.Signature, sub.Party)
	if err != nil || !ok {
		return types.ErrInvalidSignature
	}

	if sub.Nonce <= m.nonces[sub.Party] {
		return types.ErrStaleNonce
	}

	if !m.collateral.HasCollateral(sub.Party, requiredCollateral(sub.Side, sub.Price, sub.Size)) {
		return types.ErrInsufficientCollateral
	}
	return nil
}

// requiredCollateral is the worst-case loss of the order in ticks. A buyer
// pays price per unit, a seller backs the complement of the price.
func requiredCollateral(side types.Side, price, size uint64) uint64 {
	if side == types.SideBuy {
		return price * size
	}
	return (priceTickBound - price) * size
}

func (m *Market) reject(sub *types.OrderSubmission, err error) {
	reason := "internal"
	var oerr types.OrderError
	if errors.As(err, &oerr) {
		reason = oerr.Code
	}
	metrics.OrderCounterInc(m.mkt.ID, "rejected")
	metrics.OrderRejectionCounterInc(m.mkt.ID, reason)

	order := sub.IntoOrder(m.now())
	order.Status = types.OrderStatusRejected
	m.broker.Send(events.NewOrderEvent(context.Background(), order))

	if m.log.IsDebug() {
		m.log.Debug("order rejected",
			logging.MarketID(m.mkt.ID),
			logging.Party(sub.Party),
			logging.String("reason", reason),
		)
	}
}

// CancelOrder removes a resting order on the market's worker.
func (m *Market) CancelOrder(ctx context.Context, cancel *types.OrderCancellation) (*types.OrderCancellationConfirmation, error) {
	var (
		conf *types.OrderCancellationConfirmation
		err  error
	)
	if derr := m.do(ctx, func() { conf, err = m.cancelOrder(cancel) }); derr != nil {
		return nil, derr
	}
	return conf, err
}

func (m *Market) cancelOrder(cancel *types.OrderCancellation) (*types.OrderCancellationConfirmation, error) {
	if m.mkt.Status == types.MarketStatusQuarantined {
		return nil, types.ErrMarketQuarantined
	}

	order, err := m.book.GetOrderByID(cancel.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Party != cancel.Party {
		return nil, types.ErrNotOrderOwner
	}

	digest := crypto.CancelDigest(cancel.OrderID, cancel.Party)
	ok, err := crypto.VerifySignature(digest, cancel.Signature, cancel.Party)
	if err != nil || !ok {
		return nil, types.ErrInvalidSignature
	}

	conf, err := m.book.CancelOrder(cancel.OrderID)
	if err != nil {
		return nil, err
	}
	metrics.OrderGaugeAdd(-1, m.mkt.ID)
	m.broker.Send(events.NewOrderEvent(context.Background(), conf.Order))
	return conf, nil
}

// Settle resolves the market to its on-chain outcome: all resting orders
// are cancelled and no further trading is accepted. Settling an already
// settled market is a no-op, the chain may replay the event.
func (m *Market) Settle(ctx context.Context, outcome bool) error {
	return m.do(ctx, func() { m.settle(outcome) })
}

func (m *Market) settle(outcome bool) {
	if m.mkt.Status == types.MarketStatusSettled {
		return
	}
	m.setStatus(types.MarketStatusSettled)

	cancelled := m.book.Settled()
	evts := make([]events.Event, 0, 1+len(cancelled))
	evts = append(evts, events.NewMarketSettledEvent(context.Background(), m.mkt.ID, outcome))
	for _, order := range cancelled {
		evts = append(evts, events.NewOrderEvent(context.Background(), order))
	}
	m.broker.SendBatch(evts)

	metrics.OrderGaugeAdd(-len(cancelled), m.mkt.ID)
	m.log.Info("market settled",
		logging.MarketID(m.mkt.ID),
		logging.Bool("outcome", outcome),
		logging.Int("orders-cancelled", len(cancelled)),
	)
}

// Unwind restores the book state consumed by a trade whose settlement
// failed terminally.
func (m *Market) Unwind(ctx context.Context, trade *types.Trade) error {
	var err error
	if derr := m.do(ctx, func() { err = m.unwind(trade) }); derr != nil {
		return derr
	}
	return err
}

func (m *Market) unwind(trade *types.Trade) error {
	m.log.Warn("unwinding failed trade",
		logging.TradeID(trade.ID),
		logging.MarketID(m.mkt.ID),
		logging.Uint64("size", trade.Size),
	)
	if err := m.restoreOrder(trade.MakerOrderID, trade.Size); err != nil {
		return err
	}
	return m.restoreOrder(trade.TakerOrderID, trade.Size)
}

// restoreOrder gives qty back to the order. An order still resting gets
// its remaining and level volume bumped in place; an order the book
// already forgot is re-inserted at its original sequence priority, unless
// it was cancelled or expired in the meantime, or would now cross, in
// which case it re-matches.
func (m *Market) restoreOrder(orderID string, qty uint64) error {
	order, known := m.byID[orderID]
	if !known {
		m.log.Error("cannot unwind trade for unknown order",
			logging.MarketID(m.mkt.ID),
			logging.OrderID(orderID),
		)
		return types.ErrOrderNotFound
	}

	if _, err := m.book.GetOrderByID(orderID); err == nil {
		if err := m.book.RestoreOrderVolume(orderID, qty); err != nil {
			return err
		}
		m.broker.Send(events.NewOrderEvent(context.Background(), order))
		return nil
	}

	switch {
	case order.Status == types.OrderStatusCancelled || order.Status == types.OrderStatusExpired:
		// the party already walked away from this order, the quantity is
		// not restored to the book
		m.log.Warn("unwound order no longer live, liquidity not restored",
			logging.MarketID(m.mkt.ID),
			logging.OrderID(orderID),
			logging.String("status", order.Status.String()),
		)
		return nil
	case order.Type == types.OrderTypeIOC:
		// an IOC never rests, not even on unwind
		order.Remaining += qty
		order.UpdateStatus()
		m.broker.Send(events.NewOrderEvent(context.Background(), order))
		return nil
	}

	order.Remaining += qty
	if order.Remaining > order.Size {
		order.Remaining = order.Size
	}

	if m.wouldCross(order) {
		// the book moved through the order's price since it was removed,
		// conserving re-insertion would cross, so it matches again instead
		conf, err := m.book.SubmitOrder(order)
		if err != nil {
			if matching.IsInvariantViolation(err) {
				m.quarantine(err)
				return types.ErrMarketQuarantined
			}
			return err
		}
		evts := make([]events.Event, 0, 1+len(conf.Trades))
		evts = append(evts, events.NewOrderEvent(context.Background(), order))
		for _, t := range conf.Trades {
			t.ID = m.idgen()
			t.MatchedAtSequence = order.SequenceNumber
			evts = append(evts, events.NewTradeEvent(context.Background(), t))
		}
		m.broker.SendBatch(evts)
		metrics.TradeCounterAdd(len(conf.Trades), m.mkt.ID)
		if conf.Resting() {
			metrics.OrderGaugeAdd(1, m.mkt.ID)
		}
		if len(conf.Trades) > 0 {
			m.handoff(conf.Trades)
		}
		return nil
	}

	if err := m.book.ReinsertOrder(order); err != nil {
		if matching.IsInvariantViolation(err) {
			m.quarantine(err)
			return types.ErrMarketQuarantined
		}
		return err
	}
	metrics.OrderGaugeAdd(1, m.mkt.ID)
	m.broker.Send(events.NewOrderEvent(context.Background(), order))
	return nil
}

func (m *Market) wouldCross(order *types.Order) bool {
	if order.Side == types.SideBuy {
		bestAsk, _, err := m.book.BestAskPriceAndVolume()
		return err == nil && order.Price >= bestAsk
	}
	bestBid, _, err := m.book.BestBidPriceAndVolume()
	return err == nil && order.Price <= bestBid
}

// OnTick sweeps expired orders, retries parked trades and refreshes the
// book gauges.
func (m *Market) OnTick(ctx context.Context, now time.Time) {
	// fire and forget, ticks must not block the caller
	select {
	case m.ops <- func() { m.onTick(now) }:
	case <-ctx.Done():
	}
}

func (m *Market) onTick(now time.Time) {
	if m.mkt.Status == types.MarketStatusActive && !m.mkt.CloseAt.IsZero() && !now.Before(m.mkt.CloseAt) {
		m.setStatus(types.MarketStatusClosed)
		m.log.Info("market closed for trading", logging.MarketID(m.mkt.ID))
	}

	expired := m.book.RemoveExpiredOrders(now)
	if len(expired) > 0 {
		evts := make([]events.Event, 0, len(expired))
		for _, order := range expired {
			evts = append(evts, events.NewOrderEvent(context.Background(), order))
		}
		m.broker.SendBatch(evts)
		metrics.OrderGaugeAdd(-len(expired), m.mkt.ID)
	}

	m.flushOverflow()

	metrics.BookVolumeGaugeSet(uint64(m.book.GetVolumeOnSide(types.SideBuy)), m.mkt.ID, "buy")
	metrics.BookVolumeGaugeSet(uint64(m.book.GetVolumeOnSide(types.SideSell)), m.mkt.ID, "sell")
}

// handoff pushes freshly matched trades at the settlement bridge, parking
// whatever the bridge cannot take right now.
func (m *Market) handoff(trades []*types.Trade) {
	accepted, err := m.bridge.Enqueue(trades...)
	if err != nil {
		m.overflow = append(m.overflow, trades[accepted:]...)
	}
}

func (m *Market) flushOverflow() {
	if len(m.overflow) == 0 {
		return
	}
	accepted, err := m.bridge.Enqueue(m.overflow...)
	if err != nil {
		m.overflow = m.overflow[accepted:]
		return
	}
	m.overflow = nil
}

// quarantine freezes the market after a matching invariant violation. The
// book state is preserved exactly as it was for the operator to inspect.
func (m *Market) quarantine(violation error) {
	m.setStatus(types.MarketStatusQuarantined)
	m.log.Error("matching invariant violated, market quarantined",
		logging.MarketID(m.mkt.ID),
		logging.Error(violation),
	)
	m.broker.Send(events.NewMarketQuarantinedEvent(context.Background(), m.mkt.ID, violation.Error()))
}

func filledPassiveCount(impacted []*types.Order) int {
	n := 0
	for _, order := range impacted {
		if order.Remaining == 0 {
			n++
		}
	}
	return n
}
