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

package settlement

import (
	"context"
	"sync"
	"time"

	"code.polarismarkets.io/polaris/broker"
	"code.polarismarkets.io/polaris/events"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/metrics"
	"code.polarismarkets.io/polaris/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Submitter submits a batch of matched trades for one market to the
// settlement contract and returns the transaction hash identifying the
// submission.
type Submitter interface {
	SubmitTradeBatch(ctx context.Context, marketID string, trades []*types.Trade) (string, error)
}

// TradeUnwinder restores the order book state consumed by a trade that
// could not be settled.
type TradeUnwinder interface {
	UnwindTrade(trade *types.Trade) error
}

// submission tracks one on-chain transaction and the trades it carries.
type submission struct {
	txHash           string
	marketID         string
	trades           []*types.Trade
	submittedAt      time.Time
	confirmedAtBlock uint64
}

// Bridge carries matched trades from the matching engine to the settlement
// contract. It owns every trade status transition from Pending onwards,
// batching per market, retrying transient submission failures, and failing
// and unwinding trades whose submission or confirmation never lands.
type Bridge struct {
	log *logging.Logger
	Config

	submitter Submitter
	unwinder  TradeUnwinder
	broker    broker.Interface

	intake chan *types.Trade

	mu sync.Mutex
	// trades pending per market, accumulated until BatchSize or
	// MaxBatchDelay flushes them
	batches map[string][]*types.Trade
	// in-flight and confirmed submissions by transaction hash
	submissions map[string]*submission
	// every trade handed to the bridge, by trade ID
	trades map[string]*types.Trade

	now func() time.Time
	wg  sync.WaitGroup
}

// NewBridge returns a settlement bridge using the given submitter to reach
// the chain and the given unwinder to undo trades that fail terminally.
func NewBridge(log *logging.Logger, cfg Config, submitter Submitter, unwinder TradeUnwinder, bkr broker.Interface) *Bridge {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())

	return &Bridge{
		log:         log,
		Config:      cfg,
		submitter:   submitter,
		unwinder:    unwinder,
		broker:      bkr,
		intake:      make(chan *types.Trade, cfg.QueueSize),
		batches:     map[string][]*types.Trade{},
		submissions: map[string]*submission{},
		trades:      map[string]*types.Trade{},
		now:         time.Now,
	}
}

// Enqueue hands freshly matched trades to the bridge. The bridge takes
// its own copy of each trade. When the intake queue fills up mid-batch it
// returns how many trades were accepted along with the backpressure
// error, the caller keeps ownership of the rest.
func (b *Bridge) Enqueue(trades ...*types.Trade) (int, error) {
	for i, t := range trades {
		select {
		case b.intake <- t.Clone():
		default:
			b.log.Warn("settlement intake queue full",
				logging.MarketID(t.MarketID),
				logging.Int("accepted", i),
				logging.Int("rejected", len(trades)-i),
			)
			return i, types.ErrSettlementBackpressure
		}
	}
	metrics.SettlementQueueGaugeSet(float64(len(b.intake)))
	return len(trades), nil
}

// Run drives batching, submission and the finality watchdog until the
// context is cancelled. It blocks and is meant to be run in its own
// goroutine.
func (b *Bridge) Run(ctx context.Context) {
	flush := time.NewTicker(b.MaxBatchDelay.Get())
	defer flush.Stop()
	finality := time.NewTicker(b.FinalityCheckInterval.Get())
	defer finality.Stop()

	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			return
		case t := <-b.intake:
			metrics.SettlementQueueGaugeSet(float64(len(b.intake)))
			if batch := b.accumulate(t); len(batch) > 0 {
				b.submitAsync(ctx, t.MarketID, batch)
			}
		case <-flush.C:
			for marketID, batch := range b.drainBatches() {
				b.submitAsync(ctx, marketID, batch)
			}
		case <-finality.C:
			b.expireStaleSubmissions()
		}
	}
}

// accumulate registers the trade and adds it to its market batch, returning
// the batch when it has reached BatchSize.
func (b *Bridge) accumulate(t *types.Trade) []*types.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trades[t.ID] = t
	b.batches[t.MarketID] = append(b.batches[t.MarketID], t)
	if len(b.batches[t.MarketID]) < b.BatchSize {
		return nil
	}
	batch := b.batches[t.MarketID]
	delete(b.batches, t.MarketID)
	return batch
}

// drainBatches empties every partial batch for flushing.
func (b *Bridge) drainBatches() map[string][]*types.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.batches) == 0 {
		return nil
	}
	out := b.batches
	b.batches = map[string][]*types.Trade{}
	return out
}

func (b *Bridge) submitAsync(ctx context.Context, marketID string, batch []*types.Trade) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.submitBatch(ctx, marketID, batch)
	}()
}

// submitBatch pushes one batch at the chain, retrying transient failures
// with exponential backoff. When every attempt is exhausted the circuit
// breaks and the batch is failed and unwound.
func (b *Bridge) submitBatch(ctx context.Context, marketID string, batch []*types.Trade) {
	var txHash string
	op := func() error {
		sctx, cancel := context.WithTimeout(ctx, b.SubmissionTimeout.Get())
		defer cancel()
		hash, err := b.submitter.SubmitTradeBatch(sctx, marketID, batch)
		if err != nil {
			if errors.Is(err, ErrBadMarketID) {
				// no retry will ever fix a malformed identifier
				b.log.Error("trade batch submission failed permanently",
					logging.MarketID(marketID),
					logging.Error(err),
				)
				return backoff.Permanent(err)
			}
			b.log.Warn("trade batch submission failed, will retry",
				logging.MarketID(marketID),
				logging.Int("batch-size", len(batch)),
				logging.Error(err),
			)
			return err
		}
		txHash = hash
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.RetryMinBackoff.Get()
	bo.MaxInterval = b.RetryMaxBackoff.Get()
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, b.MaxRetries), ctx)); err != nil {
		b.log.Error("trade batch submission exhausted retries",
			logging.MarketID(marketID),
			logging.Int("batch-size", len(batch)),
			logging.Error(err),
		)
		b.failBatch(batch)
		return
	}

	b.markSubmitted(txHash, marketID, batch)
}

func (b *Bridge) markSubmitted(txHash, marketID string, batch []*types.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	evts := make([]events.Event, 0, len(batch))
	for _, t := range batch {
		t.SettlementStatus = types.SettlementStatusSubmitted
		t.TxHash = txHash
		evts = append(evts, events.NewTradeSettlementEvent(context.Background(), t))
		metrics.TradeSettlementCounterInc(marketID, "submitted")
	}
	b.submissions[txHash] = &submission{
		txHash:      txHash,
		marketID:    marketID,
		trades:      batch,
		submittedAt: b.now(),
	}
	b.broker.SendBatch(evts)

	if b.log.IsDebug() {
		b.log.Debug("trade batch submitted",
			logging.MarketID(marketID),
			logging.TxHash(txHash),
			logging.Int("batch-size", len(batch)),
		)
	}
}

// failBatch marks every trade in the batch failed and unwinds it against
// the order book. Failed trades are forgotten, nothing on chain can
// reference them anymore.
func (b *Bridge) failBatch(batch []*types.Trade) {
	b.mu.Lock()
	evts := make([]events.Event, 0, len(batch))
	for _, t := range batch {
		t.SettlementStatus = types.SettlementStatusFailed
		evts = append(evts, events.NewTradeSettlementEvent(context.Background(), t))
		metrics.TradeSettlementCounterInc(t.MarketID, "failed")
		delete(b.trades, t.ID)
	}
	b.mu.Unlock()
	b.broker.SendBatch(evts)

	for _, t := range batch {
		if err := b.unwinder.UnwindTrade(t); err != nil {
			b.log.Error("could not unwind failed trade",
				logging.TradeID(t.ID),
				logging.MarketID(t.MarketID),
				logging.Error(err),
			)
		}
	}
}

// ConfirmByTxHash is called by the chain event monitor when a settlement
// transaction lands on chain. Every trade of the submission moves to
// Confirmed. Confirming an unknown hash returns false; reconfirming an
// already confirmed submission is a no-op.
func (b *Bridge) ConfirmByTxHash(txHash string, blockNumber uint64) bool {
	b.mu.Lock()
	sub, ok := b.submissions[txHash]
	if !ok {
		b.mu.Unlock()
		return false
	}
	if sub.confirmedAtBlock != 0 {
		b.mu.Unlock()
		return true
	}
	sub.confirmedAtBlock = blockNumber
	evts := make([]events.Event, 0, len(sub.trades))
	for _, t := range sub.trades {
		t.SettlementStatus = types.SettlementStatusConfirmed
		evts = append(evts, events.NewTradeSettlementEvent(context.Background(), t))
		metrics.TradeSettlementCounterInc(t.MarketID, "confirmed")
	}
	b.mu.Unlock()

	b.broker.SendBatch(evts)
	b.log.Info("trade batch confirmed on chain",
		logging.MarketID(sub.marketID),
		logging.TxHash(txHash),
		logging.Uint64("block", blockNumber),
		logging.Int("batch-size", len(sub.trades)),
	)
	return true
}

// RevertConfirmationsAbove is called by the chain event monitor after a
// reorg rolled the chain back to the given block. Submissions confirmed in
// an orphaned block return to Submitted and restart their finality window,
// waiting for the event to be re-observed on the canonical chain.
func (b *Bridge) RevertConfirmationsAbove(block uint64) {
	b.mu.Lock()
	var evts []events.Event
	for _, sub := range b.submissions {
		if sub.confirmedAtBlock == 0 || sub.confirmedAtBlock <= block {
			continue
		}
		b.log.Warn("settlement confirmation orphaned by reorg",
			logging.MarketID(sub.marketID),
			logging.TxHash(sub.txHash),
			logging.Uint64("confirmed-at-block", sub.confirmedAtBlock),
			logging.Uint64("rollback-block", block),
		)
		sub.confirmedAtBlock = 0
		sub.submittedAt = b.now()
		for _, t := range sub.trades {
			t.SettlementStatus = types.SettlementStatusSubmitted
			evts = append(evts, events.NewTradeSettlementEvent(context.Background(), t))
		}
	}
	b.mu.Unlock()

	if len(evts) > 0 {
		b.broker.SendBatch(evts)
	}
}

// PruneFinalizedBelow drops confirmed submissions that can no longer be
// reorged away, keeping the submissions map from growing without bound.
func (b *Bridge) PruneFinalizedBelow(block uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for hash, sub := range b.submissions {
		if sub.confirmedAtBlock == 0 || sub.confirmedAtBlock >= block {
			continue
		}
		for _, t := range sub.trades {
			delete(b.trades, t.ID)
		}
		delete(b.submissions, hash)
	}
}

// expireStaleSubmissions fails and unwinds submissions that stayed
// unconfirmed past the finality window.
func (b *Bridge) expireStaleSubmissions() {
	deadline := b.now().Add(-b.FinalityWindow.Get())

	b.mu.Lock()
	var stale []*submission
	for hash, sub := range b.submissions {
		if sub.confirmedAtBlock != 0 || sub.submittedAt.After(deadline) {
			continue
		}
		stale = append(stale, sub)
		delete(b.submissions, hash)
	}
	b.mu.Unlock()

	for _, sub := range stale {
		b.log.Error("settlement submission unconfirmed past finality window",
			logging.MarketID(sub.marketID),
			logging.TxHash(sub.txHash),
			logging.Duration("finality-window", b.FinalityWindow.Get()),
		)
		b.failBatch(sub.trades)
	}
}

// Trade returns the bridge's view of the trade with the given ID, or nil.
func (b *Bridge) Trade(id string) *types.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.trades[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// QueueDepth reports how many trades sit in the intake queue.
func (b *Bridge) QueueDepth() int {
	return len(b.intake)
}

// PendingSubmissions reports how many submissions await confirmation.
func (b *Bridge) PendingSubmissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, sub := range b.submissions {
		if sub.confirmedAtBlock == 0 {
			n++
		}
	}
	return n
}
