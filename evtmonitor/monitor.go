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

// Package evtmonitor polls the settlement contract for OrderFilled and
// MarketSettled logs, applies them exactly once in (block, log index)
// order, and survives node restarts and chain reorganisations through the
// checkpoint store.
package evtmonitor

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"code.polarismarkets.io/polaris/checkpoint"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/metrics"
	"code.polarismarkets.io/polaris/types"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// State is the connection state of the monitor.
type State int32

const (
	// StateDisconnected - the monitor is not running, or gave up after too
	// many consecutive failures.
	StateDisconnected State = iota
	// StateConnecting - the monitor is establishing its first successful
	// poll.
	StateConnecting
	// StateSubscribed - the monitor is polling and applying events.
	StateSubscribed
	// StateReconnecting - polls are failing, retrying with backoff.
	StateReconnecting
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// ErrMonitorGaveUp is returned by Run when too many consecutive polls
// failed and operator intervention is required.
var ErrMonitorGaveUp = errors.New("chain event monitor exceeded maximum consecutive failures")

// Bridge is the settlement bridge surface the monitor reports into.
type Bridge interface {
	ConfirmByTxHash(txHash string, blockNumber uint64) bool
	RevertConfirmationsAbove(block uint64)
	PruneFinalizedBelow(block uint64)
}

// Markets resolves markets when their outcome lands on chain.
type Markets interface {
	SettleMarket(ctx context.Context, marketID string, outcome bool) error
}

// Monitor drives the poll loop between the Ethereum node and the
// settlement bridge.
type Monitor struct {
	log *logging.Logger
	Config

	client   Client
	filterer *LogFilterer
	store    *checkpoint.Store
	bridge   Bridge
	markets  Markets

	state    atomic.Int32
	failures int

	// lastProcessed and lastBlockTime mirror the persisted checkpoint for
	// cheap reads from the health endpoint
	lastProcessed atomic.Uint64
	lastBlockTime atomic.Int64
}

// New builds a monitor for the settlement contract named in the config.
func New(log *logging.Logger, cfg Config, client Client, store *checkpoint.Store, bridge Bridge, markets Markets) (*Monitor, error) {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())

	filterer, err := NewLogFilterer(log, client, ethcmn.HexToAddress(cfg.ContractAddress))
	if err != nil {
		return nil, err
	}

	return &Monitor{
		log:      log,
		Config:   cfg,
		client:   client,
		filterer: filterer,
		store:    store,
		bridge:   bridge,
		markets:  markets,
	}, nil
}

// State returns the current connection state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// LastProcessedBlockTime returns the timestamp of the last checkpointed
// block, or the zero time when no block has been observed yet.
func (m *Monitor) LastProcessedBlockTime() time.Time {
	ts := m.lastBlockTime.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// LastProcessedBlock returns the highest block fully applied and
// checkpointed.
func (m *Monitor) LastProcessedBlock() uint64 {
	return m.lastProcessed.Load()
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
	metrics.MonitorStateGaugeSet(int(s))
}

// Run polls the chain until the context is cancelled or the failure
// budget is spent. It blocks and is meant to be run in its own goroutine.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.setState(StateDisconnected)
	m.setState(StateConnecting)

	if cp, err := m.store.Checkpoint(m.ContractAddress); err == nil {
		m.lastProcessed.Store(cp.LastProcessedBlock)
		// seed the staleness clock so health doesn't report fresh until
		// the next block forces a commit
		if header, err := m.client.HeaderByNumber(ctx, new(big.Int).SetUint64(cp.LastProcessedBlock)); err == nil {
			m.lastBlockTime.Store(int64(header.Time))
		}
		m.log.Info("resuming from checkpoint",
			logging.String("contract", m.ContractAddress),
			logging.Uint64("last-processed-block", cp.LastProcessedBlock),
		)
	} else if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		m.log.Info("no checkpoint found, starting from configured block",
			logging.String("contract", m.ContractAddress),
			logging.Uint64("start-block", m.StartBlock),
		)
	} else {
		return err
	}

	ticker := time.NewTicker(m.PollInterval.Get())
	defer ticker.Stop()

	for {
		if err := m.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.failures++
			m.setState(StateReconnecting)
			m.log.Warn("chain poll failed",
				logging.Int("consecutive-failures", m.failures),
				logging.Int("max-consecutive-failures", m.MaxConsecutiveFailures),
				logging.Error(err),
			)
			if m.failures >= m.MaxConsecutiveFailures {
				m.log.Error("giving up on chain polling, operator intervention required",
					logging.Error(err),
				)
				return ErrMonitorGaveUp
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.RetryBackoff.Get()):
			}
			continue
		}

		m.failures = 0
		m.setState(StateSubscribed)
		if t := m.LastProcessedBlockTime(); !t.IsZero() {
			metrics.CheckpointStalenessGaugeSet(time.Since(t).Seconds())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll advances the monitor by at most MaxBlockRange blocks, staying
// ConfirmationDepth behind the chain head.
func (m *Monitor) poll(ctx context.Context) error {
	head, err := m.client.CurrentHeight(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't get current chain height")
	}
	if head < m.ConfirmationDepth {
		return nil
	}
	safe := head - m.ConfirmationDepth

	last := m.StartBlock
	lastHash := ""
	if cp, err := m.store.Checkpoint(m.ContractAddress); err == nil {
		last = cp.LastProcessedBlock
		lastHash = cp.LastProcessedBlockHash
	} else if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return err
	}

	if lastHash != "" {
		reorged, err := m.checkReorg(ctx, last, lastHash)
		if err != nil {
			return err
		}
		if reorged {
			// the rolled back checkpoint is picked up on the next poll
			return nil
		}
	}

	from := last + 1
	if lastHash == "" && m.StartBlock > 0 {
		from = m.StartBlock
	}
	if from > safe {
		return nil
	}
	to := safe
	if to-from+1 > m.MaxBlockRange {
		to = from + m.MaxBlockRange - 1
	}

	evts, err := m.filterer.FilterSettlementEvents(ctx, from, to)
	if err != nil {
		return err
	}

	applied := make([]*types.ChainEvent, 0, len(evts))
	for _, evt := range evts {
		processed, err := m.store.IsProcessed(evt.ID())
		if err != nil {
			return err
		}
		if processed {
			metrics.ChainEventCounterInc(evt.Type.String(), "duplicate")
			if m.log.IsDebug() {
				m.log.Debug("skipping already processed chain event",
					logging.String("event-id", evt.ID()),
				)
			}
			continue
		}
		if err := m.apply(ctx, evt); err != nil {
			return err
		}
		metrics.ChainEventCounterInc(evt.Type.String(), "applied")
		applied = append(applied, evt)
	}

	header, err := m.client.HeaderByNumber(ctx, new(big.Int).SetUint64(to))
	if err != nil {
		return errors.Wrap(err, "couldn't get header for checkpoint block")
	}
	cp := &types.Checkpoint{
		ContractID:             m.ContractAddress,
		LastProcessedBlock:     to,
		LastProcessedBlockHash: header.Hash().Hex(),
	}
	if err := m.store.CommitBatch(cp, applied, map[uint64]string{to: header.Hash().Hex()}); err != nil {
		return err
	}

	m.lastProcessed.Store(to)
	m.lastBlockTime.Store(int64(header.Time))
	metrics.CheckpointHeightGaugeSet(to)
	m.bridge.PruneFinalizedBelow(safe)

	if len(applied) > 0 || m.log.IsDebug() {
		m.log.Info("chain events applied",
			logging.Uint64("from-block", from),
			logging.Uint64("to-block", to),
			logging.Int("events", len(applied)),
		)
	}
	return nil
}

// apply routes one chain event to the component that owns its semantics.
func (m *Monitor) apply(ctx context.Context, evt *types.ChainEvent) error {
	switch evt.Type {
	case types.ChainEventTypeOrderFilled:
		if !m.bridge.ConfirmByTxHash(evt.TxHash, evt.BlockNumber) {
			// a fill for a submission this node never made, typically
			// after a restart that lost in-flight state
			m.log.Warn("fill event for unknown settlement transaction",
				logging.TxHash(evt.TxHash),
				logging.Uint64("block", evt.BlockNumber),
			)
		}
	case types.ChainEventTypeMarketSettled:
		if err := m.markets.SettleMarket(ctx, evt.MarketSettled.MarketID, evt.MarketSettled.Outcome); err != nil {
			return errors.Wrapf(err, "couldn't settle market %s", evt.MarketSettled.MarketID)
		}
	default:
		return errors.Errorf("unsupported chain event type %d", evt.Type)
	}
	return nil
}

// checkReorg compares the checkpointed block hash against the canonical
// chain. On a mismatch the checkpoint and every event processed above the
// rollback target are discarded, and settlement confirmations above it
// revert to submitted.
func (m *Monitor) checkReorg(ctx context.Context, last uint64, lastHash string) (bool, error) {
	header, err := m.client.HeaderByNumber(ctx, new(big.Int).SetUint64(last))
	if err != nil {
		return false, errors.Wrap(err, "couldn't get header for checkpointed block")
	}
	if header.Hash().Hex() == lastHash {
		return false, nil
	}

	target := uint64(0)
	if last > m.ConfirmationDepth {
		target = last - m.ConfirmationDepth
	}
	targetHeader, err := m.client.HeaderByNumber(ctx, new(big.Int).SetUint64(target))
	if err != nil {
		return false, errors.Wrap(err, "couldn't get header for rollback block")
	}

	m.log.Warn("chain reorganisation detected, rolling back",
		logging.Uint64("checkpointed-block", last),
		logging.String("checkpointed-hash", lastHash),
		logging.String("canonical-hash", header.Hash().Hex()),
		logging.Uint64("rollback-block", target),
	)
	metrics.ChainEventCounterInc("reorg", "rollback")

	cp := &types.Checkpoint{
		ContractID:             m.ContractAddress,
		LastProcessedBlock:     target,
		LastProcessedBlockHash: targetHeader.Hash().Hex(),
	}
	if err := m.store.Rollback(cp); err != nil {
		return false, err
	}
	m.bridge.RevertConfirmationsAbove(target)
	m.lastProcessed.Store(target)
	m.lastBlockTime.Store(int64(targetHeader.Time))
	metrics.CheckpointHeightGaugeSet(target)
	return true, nil
}
