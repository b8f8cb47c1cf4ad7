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
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"sync"
	"time"

	"code.polarismarkets.io/polaris/evtmonitor/contracts"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ErrBadMarketID is returned when a market identifier is not a 32 byte
// hex string and therefore cannot name an on-chain market.
var ErrBadMarketID = errors.New("market id is not a 32 byte hex string")

// ChainSubmitter records trade batches on the settlement contract. It
// implements Submitter for the bridge. Transactions are signed with the
// operator key and serialized so the account nonce stays monotonic.
type ChainSubmitter struct {
	log      *logging.Logger
	contract *contracts.SettlementTransactor
	signer   *bind.TransactOpts
	timeout  time.Duration

	mu sync.Mutex
}

// NewChainSubmitter binds the settlement contract for transactions
// signed with the given operator key.
func NewChainSubmitter(
	log *logging.Logger,
	cfg Config,
	contract *contracts.SettlementTransactor,
	key *ecdsa.PrivateKey,
	chainID *big.Int,
) (*ChainSubmitter, error) {
	log = log.Named(namedLogger + ".submitter")
	log.SetLevel(cfg.Level.Get())

	signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't build transaction signer")
	}
	return &ChainSubmitter{
		log:      log,
		contract: contract,
		signer:   signer,
		timeout:  cfg.SubmissionTimeout.Get(),
	}, nil
}

// SubmitTradeBatch records the given trades for one market on the
// settlement contract and returns the transaction hash.
func (s *ChainSubmitter) SubmitTradeBatch(ctx context.Context, marketID string, trades []*types.Trade) (string, error) {
	mkt, err := marketIDBytes(marketID)
	if err != nil {
		return "", err
	}

	buyIDs := make([][32]byte, 0, len(trades))
	sellIDs := make([][32]byte, 0, len(trades))
	prices := make([]*big.Int, 0, len(trades))
	sizes := make([]*big.Int, 0, len(trades))
	for _, t := range trades {
		buyID, sellID := t.MakerOrderID, t.TakerOrderID
		if t.Aggressor == types.SideBuy {
			buyID, sellID = t.TakerOrderID, t.MakerOrderID
		}
		buyIDs = append(buyIDs, orderIDBytes(buyID))
		sellIDs = append(sellIDs, orderIDBytes(sellID))
		prices = append(prices, new(big.Int).SetUint64(t.Price))
		sizes = append(sizes, new(big.Int).SetUint64(t.Size))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// one in-flight transaction at a time, the account nonce is
	// assigned by the backend at send time
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := *s.signer
	opts.Context = ctx
	tx, err := s.contract.RecordTrades(&opts, mkt, buyIDs, sellIDs, prices, sizes)
	if err != nil {
		return "", errors.Wrap(err, "couldn't record trade batch on chain")
	}

	s.log.Debug("trade batch recorded",
		logging.MarketID(marketID),
		logging.TxHash(tx.Hash().Hex()),
		logging.Int("num-trades", len(trades)),
	)
	return tx.Hash().Hex(), nil
}

// marketIDBytes decodes a 32 byte hex market identifier.
func marketIDBytes(id string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != 32 {
		return out, ErrBadMarketID
	}
	copy(out[:], raw)
	return out, nil
}

// orderIDBytes maps an engine order identifier onto the bytes32 the
// contract keys fills with.
func orderIDBytes(id string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(id)))
	return out
}
