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

// Package execution routes validated order flow into per-market workers.
// Each market runs a single goroutine draining a bounded op queue, which
// makes matching deterministic in arrival order without a lock around the
// book.
package execution

import (
	"context"
	"sync"
	"time"

	"code.polarismarkets.io/polaris/broker"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/metrics"
	"code.polarismarkets.io/polaris/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMarketAlreadyExist signals that a market already exist.
var ErrMarketAlreadyExist = errors.New("market already exist")

// SettlementBridge accepts matched trades for on-chain settlement.
type SettlementBridge interface {
	Enqueue(trades ...*types.Trade) (int, error)
}

// CollateralOracle answers whether a party can back an order. The margin
// ledger itself lives on chain, the engine only consults it.
type CollateralOracle interface {
	HasCollateral(party string, required uint64) bool
}

// Admission rate limits order flow per party before it reaches a market
// worker.
type Admission interface {
	Allow(key string) bool
}

// Engine is the top level order flow engine: it holds the market registry
// and fans operations out to the per-market workers.
type Engine struct {
	log *logging.Logger
	Config

	broker     broker.Interface
	bridge     SettlementBridge
	collateral CollateralOracle
	admission  Admission

	mu      sync.RWMutex
	markets map[string]*Market

	ctx   context.Context
	idgen func() string
	now   func() time.Time
}

// NewEngine takes its dependencies and returns a new execution engine.
// Market workers are spawned under the given context and stop with it.
func NewEngine(ctx context.Context, log *logging.Logger, cfg Config, bkr broker.Interface, bridge SettlementBridge, collateral CollateralOracle, admission Admission) *Engine {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())

	return &Engine{
		log:        log,
		Config:     cfg,
		broker:     bkr,
		bridge:     bridge,
		collateral: collateral,
		admission:  admission,
		markets:    map[string]*Market{},
		ctx:        ctx,
		idgen:      func() string { return uuid.New().String() },
		now:        time.Now,
	}
}

// CreateMarket registers a market and starts its worker.
func (e *Engine) CreateMarket(mkt *types.Market) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.markets[mkt.ID]; exists {
		return ErrMarketAlreadyExist
	}
	if mkt.Status == types.MarketStatusUnspecified {
		mkt.Status = types.MarketStatusActive
	}

	market := newMarket(e.log, e.Config, mkt, e.broker, e.bridge, e.collateral, e.idgen, e.now)
	e.markets[mkt.ID] = market
	go market.run(e.ctx)

	e.log.Info("market created",
		logging.MarketID(mkt.ID),
		logging.String("status", mkt.Status.String()),
	)
	return nil
}

func (e *Engine) market(id string) (*Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	market, exists := e.markets[id]
	if !exists {
		return nil, types.ErrInvalidMarketID
	}
	return market, nil
}

// SubmitOrder checks the party against the admission limiter and hands
// the submission to its market worker.
func (e *Engine) SubmitOrder(ctx context.Context, sub *types.OrderSubmission) (*types.OrderConfirmation, error) {
	market, err := e.market(sub.MarketID)
	if err != nil {
		return nil, err
	}
	if !e.admission.Allow(sub.Party) {
		metrics.AdmissionRejectCounterInc()
		return nil, types.ErrOrderRateLimited
	}
	return market.SubmitOrder(ctx, sub)
}

// CancelOrder hands the cancellation to its market worker. Cancellations
// are not rate limited, pulling quotes must always be possible.
func (e *Engine) CancelOrder(ctx context.Context, cancel *types.OrderCancellation) (*types.OrderCancellationConfirmation, error) {
	market, err := e.market(cancel.MarketID)
	if err != nil {
		return nil, err
	}
	return market.CancelOrder(ctx, cancel)
}

// SettleMarket resolves a market to its on-chain outcome. It implements
// the surface the chain event monitor reports into.
func (e *Engine) SettleMarket(ctx context.Context, marketID string, outcome bool) error {
	market, err := e.market(marketID)
	if err != nil {
		// a settlement event for a market this node never traded is not an
		// error worth failing the chain poll over
		e.log.Warn("settlement event for unknown market",
			logging.MarketID(marketID),
		)
		return nil
	}
	return market.Settle(ctx, outcome)
}

// UnwindTrade implements the settlement bridge's unwind callback, routing
// the trade back into its market worker.
func (e *Engine) UnwindTrade(trade *types.Trade) error {
	market, err := e.market(trade.MarketID)
	if err != nil {
		return err
	}
	return market.Unwind(e.ctx, trade)
}

// OnTick drives time based housekeeping on every market.
func (e *Engine) OnTick(ctx context.Context, now time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, market := range e.markets {
		market.OnTick(ctx, now)
	}
}

// Run ticks all markets at the configured interval until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.TickInterval.Get())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.OnTick(ctx, now)
		}
	}
}

// ActiveMarkets reports how many markets currently accept orders.
func (e *Engine) ActiveMarkets() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0
	for _, market := range e.markets {
		if market.Status() == types.MarketStatusActive {
			n++
		}
	}
	return n
}
