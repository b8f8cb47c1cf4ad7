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
	"encoding/binary"
	"encoding/json"
	"fmt"

	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	cp:<contract>                          -> checkpoint (json)
//	evt:<txhash>:<logindex>                -> processed marker (block number)
//	bevt:<contract>:<block>:<tx>:<index>   -> secondary index for rollback
//	bh:<contract>:<block>                  -> block hash
const (
	keyPrefixCheckpoint = "cp:"
	keyPrefixEvent      = "evt:"
	keyPrefixBlockEvent = "bevt:"
	keyPrefixBlockHash  = "bh:"
)

// ErrNoCheckpoint is returned when no checkpoint was persisted yet for a
// contract.
var ErrNoCheckpoint = errors.New("no checkpoint for contract")

// Store persists chain-event checkpoints, the processed-event set and the
// block hashes needed for reorg detection. A batch of applied events and
// the checkpoint covering them are committed in a single atomic write, so
// a crash between event application and checkpoint advance cannot happen.
type Store struct {
	log *logging.Logger
	db  *leveldb.DB
}

// NewStore opens (or creates) the leveldb store at the configured path.
func NewStore(log *logging.Logger, cfg Config) (*Store, error) {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())

	db, err := leveldb.OpenFile(cfg.Path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open checkpoint store")
	}
	return &Store{log: log, db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint returns the persisted checkpoint for the contract.
func (s *Store) Checkpoint(contractID string) (*types.Checkpoint, error) {
	buf, err := s.db.Get(checkpointKey(contractID), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read checkpoint")
	}
	cp := &types.Checkpoint{}
	if err := json.Unmarshal(buf, cp); err != nil {
		return nil, errors.Wrap(err, "couldn't decode checkpoint")
	}
	return cp, nil
}

// IsProcessed reports whether the event identity was already applied for
// effect.
func (s *Store) IsProcessed(eventID string) (bool, error) {
	ok, err := s.db.Has(eventKey(eventID), nil)
	if err != nil {
		return false, errors.Wrap(err, "couldn't read processed-event set")
	}
	return ok, nil
}

// BlockHash returns the stored hash for a processed block, empty if the
// block is unknown.
func (s *Store) BlockHash(contractID string, block uint64) (string, error) {
	buf, err := s.db.Get(blockHashKey(contractID, block), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "couldn't read block hash")
	}
	return string(buf), nil
}

// CommitBatch atomically records a batch of applied events, the hashes of
// the blocks they came from, and the advanced checkpoint. Either all of it
// is durable or none of it is.
func (s *Store) CommitBatch(cp *types.Checkpoint, events []*types.ChainEvent, blockHashes map[uint64]string) error {
	buf, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "couldn't encode checkpoint")
	}

	batch := new(leveldb.Batch)
	batch.Put(checkpointKey(cp.ContractID), buf)
	for _, ev := range events {
		blockBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(blockBuf, ev.BlockNumber)
		batch.Put(eventKey(ev.ID()), blockBuf)
		batch.Put(blockEventKey(cp.ContractID, ev.BlockNumber, ev.ID()), nil)
	}
	for block, hash := range blockHashes {
		batch.Put(blockHashKey(cp.ContractID, block), []byte(hash))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "couldn't commit event batch")
	}

	if s.log.IsDebug() {
		s.log.Debug("committed event batch",
			logging.String("contract-id", cp.ContractID),
			logging.Int("events", len(events)),
			logging.Uint64("last-processed-block", cp.LastProcessedBlock))
	}
	return nil
}

// Rollback rewinds the checkpoint to the given position and forgets every
// processed event and block hash above it, so the monitor can re-process
// the orphaned range after a reorg.
func (s *Store) Rollback(cp *types.Checkpoint) error {
	buf, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "couldn't encode checkpoint")
	}

	batch := new(leveldb.Batch)
	batch.Put(checkpointKey(cp.ContractID), buf)

	// walk the secondary index from the first orphaned block upwards
	start := blockEventKey(cp.ContractID, cp.LastProcessedBlock+1, "")
	limit := util.BytesPrefix([]byte(keyPrefixBlockEvent + cp.ContractID + ":"))
	iter := s.db.NewIterator(&util.Range{Start: start, Limit: limit.Limit}, nil)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
		if id := eventIDFromBlockEventKey(cp.ContractID, key); id != "" {
			batch.Delete(eventKey(id))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "couldn't iterate orphaned events")
	}

	hashStart := blockHashKey(cp.ContractID, cp.LastProcessedBlock+1)
	hashLimit := util.BytesPrefix([]byte(keyPrefixBlockHash + cp.ContractID + ":"))
	iter = s.db.NewIterator(&util.Range{Start: hashStart, Limit: hashLimit.Limit}, nil)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "couldn't iterate orphaned block hashes")
	}

	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "couldn't commit rollback")
	}

	s.log.Info("checkpoint rolled back",
		logging.String("contract-id", cp.ContractID),
		logging.Uint64("last-processed-block", cp.LastProcessedBlock))
	return nil
}

func checkpointKey(contractID string) []byte {
	return []byte(keyPrefixCheckpoint + contractID)
}

func eventKey(eventID string) []byte {
	return []byte(keyPrefixEvent + eventID)
}

func blockHashKey(contractID string, block uint64) []byte {
	key := []byte(keyPrefixBlockHash + contractID + ":")
	return binary.BigEndian.AppendUint64(key, block)
}

func blockEventKey(contractID string, block uint64, eventID string) []byte {
	key := []byte(keyPrefixBlockEvent + contractID + ":")
	key = binary.BigEndian.AppendUint64(key, block)
	if eventID != "" {
		key = append(key, ':')
		key = append(key, []byte(eventID)...)
	}
	return key
}

func eventIDFromBlockEventKey(contractID string, key []byte) string {
	// bevt:<contract>:<8 byte block>:<event id>
	prefixLen := len(keyPrefixBlockEvent) + len(contractID) + 1 + 8 + 1
	if len(key) <= prefixLen {
		return ""
	}
	return string(key[prefixLen:])
}

// String renders the store for diagnostics.
func (s *Store) String() string {
	return fmt.Sprintf("checkpoint.Store(%p)", s.db)
}
