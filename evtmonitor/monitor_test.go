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

package evtmonitor

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"
	"testing"
	"time"

	"code.polarismarkets.io/polaris/checkpoint"
	"code.polarismarkets.io/polaris/config/encoding"
	"code.polarismarkets.io/polaris/evtmonitor/contracts"
	"code.polarismarkets.io/polaris/logging"

	eth "github.com/ethereum/go-ethereum"
	ethcmn "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContractAddr = "0x9a8b7c6d5e4f30211203f4e5d6c7b8a990817263"

type fakeClient struct {
	mu        sync.Mutex
	height    uint64
	heightErr error
	logs      []ethtypes.Log
	// extras vary the header hash per block, changing one simulates a
	// reorg
	extras map[uint64][]byte
	// times are per-block header timestamps
	times map[uint64]uint64
}

func (c *fakeClient) CurrentHeight(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heightErr != nil {
		return 0, c.heightErr
	}
	return c.height, nil
}

func (c *fakeClient) HeaderByNumber(_ context.Context, number *big.Int) (*ethtypes.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &ethtypes.Header{
		Number: new(big.Int).Set(number),
		Extra:  c.extras[number.Uint64()],
		Time:   c.times[number.Uint64()],
	}, nil
}

func (c *fakeClient) headerHash(block uint64) string {
	header, _ := c.HeaderByNumber(context.Background(), new(big.Int).SetUint64(block))
	return header.Hash().Hex()
}

func (c *fakeClient) forkBlock(block uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.extras == nil {
		c.extras = map[uint64][]byte{}
	}
	c.extras[block] = []byte("forked")
}

func (c *fakeClient) FilterLogs(_ context.Context, query eth.FilterQuery) ([]ethtypes.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	from, to := query.FromBlock.Uint64(), query.ToBlock.Uint64()
	out := []ethtypes.Log{}
	for _, l := range c.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *fakeClient) SubscribeFilterLogs(context.Context, eth.FilterQuery, chan<- ethtypes.Log) (eth.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

type fakeBridge struct {
	mu        sync.Mutex
	confirmed []string
	reverted  []uint64
	pruned    []uint64
}

func (b *fakeBridge) ConfirmByTxHash(txHash string, _ uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmed = append(b.confirmed, txHash)
	return true
}

func (b *fakeBridge) RevertConfirmationsAbove(block uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reverted = append(b.reverted, block)
}

func (b *fakeBridge) PruneFinalizedBelow(block uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruned = append(b.pruned, block)
}

type fakeMarkets struct {
	mu      sync.Mutex
	settled []string
	outcome map[string]bool
}

func (m *fakeMarkets) SettleMarket(_ context.Context, marketID string, outcome bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcome == nil {
		m.outcome = map[string]bool{}
	}
	m.settled = append(m.settled, marketID)
	m.outcome[marketID] = outcome
	return nil
}

func testMonitorConfig() Config {
	cfg := NewDefaultConfig()
	cfg.ContractAddress = testContractAddr
	cfg.StartBlock = 100
	cfg.ConfirmationDepth = 5
	cfg.MaxBlockRange = 100
	cfg.MaxConsecutiveFailures = 3
	cfg.PollInterval = encoding.Duration{Duration: time.Millisecond}
	cfg.RetryBackoff = encoding.Duration{Duration: time.Millisecond}
	return cfg
}

func getTestMonitor(t *testing.T, client *fakeClient, bridge *fakeBridge, markets *fakeMarkets) (*Monitor, *checkpoint.Store) {
	t.Helper()
	storeCfg := checkpoint.NewDefaultConfig()
	storeCfg.Path = t.TempDir()
	store, err := checkpoint.NewStore(logging.NewTestLogger(), storeCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mon, err := New(logging.NewTestLogger(), testMonitorConfig(), client, store, bridge, markets)
	require.NoError(t, err)
	return mon, store
}

func orderFilledLog(t *testing.T, txHash string, block uint64, index uint) ethtypes.Log {
	t.Helper()
	filterer, err := contracts.NewSettlementFilterer()
	require.NoError(t, err)

	data := make([]byte, 64)
	data[31] = 100 // price
	data[63] = 5   // size
	return ethtypes.Log{
		Address: ethcmn.HexToAddress(testContractAddr),
		Topics: []ethcmn.Hash{
			filterer.OrderFilledID(),
			ethcmn.BytesToHash([]byte("order-1")),
			ethcmn.HexToHash("0x000000000000000000000000a1b2c3d4e5f60718293a4b5c6d7e8f9001122334"),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      ethcmn.HexToHash(txHash),
		Index:       index,
	}
}

func marketSettledLog(t *testing.T, txHash string, block uint64, index uint, marketID ethcmn.Hash, outcome bool) ethtypes.Log {
	t.Helper()
	filterer, err := contracts.NewSettlementFilterer()
	require.NoError(t, err)

	data := make([]byte, 32)
	if outcome {
		data[31] = 1
	}
	return ethtypes.Log{
		Address:     ethcmn.HexToAddress(testContractAddr),
		Topics:      []ethcmn.Hash{filterer.MarketSettledID(), marketID},
		Data:        data,
		BlockNumber: block,
		TxHash:      ethcmn.HexToHash(txHash),
		Index:       index,
	}
}

func TestMonitorAppliesEventsBehindConfirmationDepth(t *testing.T) {
	marketID := ethcmn.BytesToHash([]byte("market-one"))
	client := &fakeClient{
		height: 110,
		logs: []ethtypes.Log{
			marketSettledLog(t, "0xbbb", 103, 1, marketID, true),
			orderFilledLog(t, "0xaaa", 102, 0),
		},
	}
	bridge := &fakeBridge{}
	markets := &fakeMarkets{}
	mon, store := getTestMonitor(t, client, bridge, markets)

	require.NoError(t, mon.poll(context.Background()))

	// the fill confirmation lands before the settlement, block order wins
	require.Len(t, bridge.confirmed, 1)
	assert.Equal(t, ethcmn.HexToHash("0xaaa").Hex(), bridge.confirmed[0])
	require.Len(t, markets.settled, 1)
	assert.Equal(t, hex.EncodeToString(marketID[:]), markets.settled[0])
	assert.True(t, markets.outcome[markets.settled[0]])

	// checkpointed at head minus the confirmation depth
	assert.Equal(t, uint64(105), mon.LastProcessedBlock())
	cp, err := store.Checkpoint(testContractAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(105), cp.LastProcessedBlock)
	assert.Equal(t, client.headerHash(105), cp.LastProcessedBlockHash)
	assert.Equal(t, []uint64{105}, bridge.pruned)
}

func TestMonitorTracksProcessedBlockTime(t *testing.T) {
	blockTime := uint64(1_700_000_000)
	client := &fakeClient{
		height: 110,
		times:  map[uint64]uint64{105: blockTime},
	}
	mon, _ := getTestMonitor(t, client, &fakeBridge{}, &fakeMarkets{})

	// nothing observed yet, staleness is unknown
	assert.True(t, mon.LastProcessedBlockTime().IsZero())

	require.NoError(t, mon.poll(context.Background()))

	assert.Equal(t, time.Unix(int64(blockTime), 0), mon.LastProcessedBlockTime())
}

func TestMonitorSkipsProcessedEvents(t *testing.T) {
	client := &fakeClient{
		height: 110,
		logs:   []ethtypes.Log{orderFilledLog(t, "0xaaa", 102, 0)},
	}
	bridge := &fakeBridge{}
	mon, store := getTestMonitor(t, client, bridge, &fakeMarkets{})

	require.NoError(t, mon.poll(context.Background()))
	require.Len(t, bridge.confirmed, 1)

	// rewind the checkpoint while keeping the processed-event markers so
	// the same range is polled again
	cp, err := store.Checkpoint(testContractAddr)
	require.NoError(t, err)
	cp.LastProcessedBlock = 101
	cp.LastProcessedBlockHash = client.headerHash(101)
	require.NoError(t, store.CommitBatch(cp, nil, map[uint64]string{101: cp.LastProcessedBlockHash}))
	require.NoError(t, mon.poll(context.Background()))
	assert.Len(t, bridge.confirmed, 1)
}

func TestMonitorWaitsBelowConfirmationDepth(t *testing.T) {
	client := &fakeClient{
		height: 104,
		logs:   []ethtypes.Log{orderFilledLog(t, "0xaaa", 102, 0)},
	}
	bridge := &fakeBridge{}
	mon, _ := getTestMonitor(t, client, bridge, &fakeMarkets{})

	// safe head is 99 which is before the start block, nothing happens
	require.NoError(t, mon.poll(context.Background()))
	assert.Empty(t, bridge.confirmed)
	assert.Equal(t, uint64(0), mon.LastProcessedBlock())
}

func TestMonitorRollsBackOnReorg(t *testing.T) {
	client := &fakeClient{
		height: 110,
		logs:   []ethtypes.Log{orderFilledLog(t, "0xaaa", 102, 0)},
	}
	bridge := &fakeBridge{}
	mon, store := getTestMonitor(t, client, bridge, &fakeMarkets{})

	require.NoError(t, mon.poll(context.Background()))
	require.Len(t, bridge.confirmed, 1)
	require.Equal(t, uint64(105), mon.LastProcessedBlock())

	// the checkpointed block is replaced on the canonical chain
	client.forkBlock(105)
	require.NoError(t, mon.poll(context.Background()))

	assert.Equal(t, []uint64{100}, bridge.reverted)
	assert.Equal(t, uint64(100), mon.LastProcessedBlock())
	cp, err := store.Checkpoint(testContractAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cp.LastProcessedBlock)

	// the orphaned range is re-processed on the next poll
	require.NoError(t, mon.poll(context.Background()))
	assert.Len(t, bridge.confirmed, 2)
	assert.Equal(t, uint64(105), mon.LastProcessedBlock())
}

func TestMonitorGivesUpAfterConsecutiveFailures(t *testing.T) {
	client := &fakeClient{heightErr: errors.New("node unreachable")}
	mon, _ := getTestMonitor(t, client, &fakeBridge{}, &fakeMarkets{})

	err := mon.Run(context.Background())
	assert.ErrorIs(t, err, ErrMonitorGaveUp)
	assert.Equal(t, StateDisconnected, mon.State())
}

func TestMonitorRunStopsOnContextCancel(t *testing.T) {
	client := &fakeClient{height: 110}
	mon, _ := getTestMonitor(t, client, &fakeBridge{}, &fakeMarkets{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
	assert.Equal(t, StateDisconnected, mon.State())
}
