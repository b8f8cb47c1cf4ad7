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
	"sort"

	"code.polarismarkets.io/polaris/evtmonitor/contracts"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"

	eth "github.com/ethereum/go-ethereum"
	ethbind "github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcmn "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// Client is the part of the Ethereum API the monitor relies on.
type Client interface {
	ethbind.ContractFilterer

	CurrentHeight(context.Context) (uint64, error)
	HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error)
}

// LogFilterer wraps the settlement contract filterer to return chain
// events in deterministic (block, log index) order.
type LogFilterer struct {
	log    *logging.Logger
	client Client

	filterer *contracts.SettlementFilterer
	contract ethcmn.Address
}

// NewLogFilterer builds a filterer for the settlement contract at the
// given address.
func NewLogFilterer(log *logging.Logger, client Client, contract ethcmn.Address) (*LogFilterer, error) {
	filterer, err := contracts.NewSettlementFilterer()
	if err != nil {
		return nil, err
	}
	return &LogFilterer{
		log:      log.Named("log-filterer"),
		client:   client,
		filterer: filterer,
		contract: contract,
	}, nil
}

// FilterSettlementEvents retrieves the settlement contract events between
// startAt and stopAt inclusive, ordered by block number then log index.
func (f *LogFilterer) FilterSettlementEvents(ctx context.Context, startAt, stopAt uint64) ([]*types.ChainEvent, error) {
	query := eth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(startAt),
		ToBlock:   new(big.Int).SetUint64(stopAt),
		Addresses: []ethcmn.Address{f.contract},
		Topics: [][]ethcmn.Hash{{
			f.filterer.OrderFilledID(),
			f.filterer.MarketSettledID(),
		}},
	}

	logs, err := f.client.FilterLogs(ctx, query)
	if err != nil {
		f.log.Error("couldn't filter settlement contract logs",
			logging.Uint64("from-block", startAt),
			logging.Uint64("to-block", stopAt),
			logging.Error(err),
		)
		return nil, errors.Wrap(err, "couldn't filter settlement contract logs")
	}

	evts := make([]*types.ChainEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		evt, err := f.toChainEvent(l)
		if err != nil {
			return nil, err
		}
		evts = append(evts, evt)
	}

	sort.SliceStable(evts, func(i, j int) bool {
		if evts[i].BlockNumber != evts[j].BlockNumber {
			return evts[i].BlockNumber < evts[j].BlockNumber
		}
		return evts[i].LogIndex < evts[j].LogIndex
	})
	return evts, nil
}

// toChainEvent transforms a log into a ChainEvent. Failing to parse a log
// matched by our own topic filter means the contract ABI and the query
// went out of sync, which is a programming error.
func (f *LogFilterer) toChainEvent(l ethtypes.Log) (*types.ChainEvent, error) {
	switch l.Topics[0] {
	case f.filterer.OrderFilledID():
		event, err := f.filterer.ParseOrderFilled(l)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't parse OrderFilled event")
		}
		f.debugOrderFilled(event)
		return &types.ChainEvent{
			TxHash:      l.TxHash.Hex(),
			LogIndex:    uint64(l.Index),
			BlockNumber: l.BlockNumber,
			BlockHash:   l.BlockHash.Hex(),
			Type:        types.ChainEventTypeOrderFilled,
			OrderFilled: &types.OrderFilled{
				OrderID: hex.EncodeToString(event.OrderId[:]),
				Trader:  event.Trader.Hex(),
				Price:   event.Price.Uint64(),
				Size:    event.Size.Uint64(),
			},
		}, nil
	case f.filterer.MarketSettledID():
		event, err := f.filterer.ParseMarketSettled(l)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't parse MarketSettled event")
		}
		f.debugMarketSettled(event)
		return &types.ChainEvent{
			TxHash:      l.TxHash.Hex(),
			LogIndex:    uint64(l.Index),
			BlockNumber: l.BlockNumber,
			BlockHash:   l.BlockHash.Hex(),
			Type:        types.ChainEventTypeMarketSettled,
			MarketSettled: &types.MarketSettled{
				MarketID: hex.EncodeToString(event.MarketId[:]),
				Outcome:  event.Outcome,
			},
		}, nil
	default:
		return nil, errors.Errorf("unsupported settlement contract log event %s", l.Topics[0].String())
	}
}

func (f *LogFilterer) debugOrderFilled(event *contracts.SettlementOrderFilled) {
	if f.log.IsDebug() {
		f.log.Debug("found OrderFilled event",
			logging.String("order-id", hex.EncodeToString(event.OrderId[:])),
			logging.String("trader", event.Trader.Hex()),
			logging.Uint64("block", event.Raw.BlockNumber),
		)
	}
}

func (f *LogFilterer) debugMarketSettled(event *contracts.SettlementMarketSettled) {
	if f.log.IsDebug() {
		f.log.Debug("found MarketSettled event",
			logging.String("market-id", hex.EncodeToString(event.MarketId[:])),
			logging.Bool("outcome", event.Outcome),
			logging.Uint64("block", event.Raw.BlockNumber),
		)
	}
}
