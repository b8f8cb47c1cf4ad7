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

package checkpoint

import (
	"testing"

	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x1f2e3d4c5b6a79880091a2b3c4d5e6f708192a3b"

func getTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Path = t.TempDir()
	store, err := NewStore(logging.NewTestLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func chainEvent(txHash string, logIndex, block uint64) *types.ChainEvent {
	return &types.ChainEvent{
		TxHash:      txHash,
		LogIndex:    logIndex,
		BlockNumber: block,
		Type:        types.ChainEventTypeOrderFilled,
	}
}

func TestStoreNoCheckpoint(t *testing.T) {
	store := getTestStore(t)

	_, err := store.Checkpoint(testContract)
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	processed, err := store.IsProcessed("0xdead:0")
	require.NoError(t, err)
	assert.False(t, processed)

	hash, err := store.BlockHash(testContract, 42)
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestStoreCommitBatch(t *testing.T) {
	store := getTestStore(t)

	events := []*types.ChainEvent{
		chainEvent("0xaaa", 0, 10),
		chainEvent("0xaaa", 1, 10),
		chainEvent("0xbbb", 0, 11),
	}
	cp := &types.Checkpoint{
		ContractID:             testContract,
		LastProcessedBlock:     12,
		LastProcessedBlockHash: "0xhash12",
	}
	require.NoError(t, store.CommitBatch(cp, events, map[uint64]string{
		10: "0xhash10",
		11: "0xhash11",
		12: "0xhash12",
	}))

	got, err := store.Checkpoint(testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got.LastProcessedBlock)
	assert.Equal(t, "0xhash12", got.LastProcessedBlockHash)

	for _, ev := range events {
		processed, err := store.IsProcessed(ev.ID())
		require.NoError(t, err)
		assert.True(t, processed, ev.ID())
	}

	hash, err := store.BlockHash(testContract, 11)
	require.NoError(t, err)
	assert.Equal(t, "0xhash11", hash)
}

func TestStoreReplayedCommitIsIdempotent(t *testing.T) {
	store := getTestStore(t)

	events := []*types.ChainEvent{chainEvent("0xaaa", 0, 10)}
	cp := &types.Checkpoint{ContractID: testContract, LastProcessedBlock: 10, LastProcessedBlockHash: "0xhash10"}
	hashes := map[uint64]string{10: "0xhash10"}

	require.NoError(t, store.CommitBatch(cp, events, hashes))
	// a crashed node replaying its last batch must land in the same state
	require.NoError(t, store.CommitBatch(cp, events, hashes))

	got, err := store.Checkpoint(testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.LastProcessedBlock)

	processed, err := store.IsProcessed("0xaaa:0")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestStoreRollbackForgetsOrphanedRange(t *testing.T) {
	store := getTestStore(t)

	events := []*types.ChainEvent{
		chainEvent("0xaaa", 0, 10),
		chainEvent("0xbbb", 0, 11),
		chainEvent("0xccc", 3, 12),
	}
	cp := &types.Checkpoint{ContractID: testContract, LastProcessedBlock: 12, LastProcessedBlockHash: "0xhash12"}
	require.NoError(t, store.CommitBatch(cp, events, map[uint64]string{
		10: "0xhash10",
		11: "0xhash11",
		12: "0xhash12",
	}))

	require.NoError(t, store.Rollback(&types.Checkpoint{
		ContractID:             testContract,
		LastProcessedBlock:     10,
		LastProcessedBlockHash: "0xhash10",
	}))

	got, err := store.Checkpoint(testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.LastProcessedBlock)

	// events at or below the rollback target survive
	processed, err := store.IsProcessed("0xaaa:0")
	require.NoError(t, err)
	assert.True(t, processed)

	// events above it can be re-processed on the canonical chain
	for _, id := range []string{"0xbbb:0", "0xccc:3"} {
		processed, err := store.IsProcessed(id)
		require.NoError(t, err)
		assert.False(t, processed, id)
	}

	hash, err := store.BlockHash(testContract, 10)
	require.NoError(t, err)
	assert.Equal(t, "0xhash10", hash)
	for _, block := range []uint64{11, 12} {
		hash, err := store.BlockHash(testContract, block)
		require.NoError(t, err)
		assert.Empty(t, hash)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Path = t.TempDir()
	log := logging.NewTestLogger()

	store, err := NewStore(log, cfg)
	require.NoError(t, err)
	cp := &types.Checkpoint{ContractID: testContract, LastProcessedBlock: 7, LastProcessedBlockHash: "0xhash7"}
	require.NoError(t, store.CommitBatch(cp, []*types.ChainEvent{chainEvent("0xaaa", 0, 7)}, map[uint64]string{7: "0xhash7"}))
	require.NoError(t, store.Close())

	store, err = NewStore(log, cfg)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Checkpoint(testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.LastProcessedBlock)

	processed, err := store.IsProcessed("0xaaa:0")
	require.NoError(t, err)
	assert.True(t, processed)
}
