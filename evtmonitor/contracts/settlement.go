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

// Package contracts holds the ABI bindings for the on-chain settlement
// contract of Polaris markets.
package contracts

import (
	"math/big"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	ethcmn "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// SettlementABI is the ABI of the settlement contract, covering the
// events consumed by the monitor and the trade recording entry point
// used by the bridge submitter.
const SettlementABI = `[{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"orderId","type":"bytes32"},{"indexed":true,"internalType":"address","name":"trader","type":"address"},{"indexed":false,"internalType":"uint256","name":"price","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"size","type":"uint256"}],"name":"OrderFilled","type":"event"},{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"marketId","type":"bytes32"},{"indexed":false,"internalType":"bool","name":"outcome","type":"bool"}],"name":"MarketSettled","type":"event"},{"inputs":[{"internalType":"bytes32","name":"marketId","type":"bytes32"},{"internalType":"bytes32[]","name":"buyOrderIds","type":"bytes32[]"},{"internalType":"bytes32[]","name":"sellOrderIds","type":"bytes32[]"},{"internalType":"uint256[]","name":"prices","type":"uint256[]"},{"internalType":"uint256[]","name":"sizes","type":"uint256[]"}],"name":"recordTrades","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const (
	// EventOrderFilled is the name of the fill acknowledgement event.
	EventOrderFilled = "OrderFilled"
	// EventMarketSettled is the name of the market resolution event.
	EventMarketSettled = "MarketSettled"
)

// ErrNotSettlementEvent is returned when a log does not carry one of the
// settlement contract events.
var ErrNotSettlementEvent = errors.New("log is not a settlement contract event")

// SettlementOrderFilled mirrors the OrderFilled event.
type SettlementOrderFilled struct {
	OrderId [32]byte
	Trader  ethcmn.Address
	Price   *big.Int
	Size    *big.Int
	Raw     ethtypes.Log
}

// SettlementMarketSettled mirrors the MarketSettled event.
type SettlementMarketSettled struct {
	MarketId [32]byte
	Outcome  bool
	Raw      ethtypes.Log
}

// SettlementFilterer parses raw Ethereum logs into settlement contract
// events.
type SettlementFilterer struct {
	abi ethabi.ABI
}

// NewSettlementFilterer parses the settlement contract ABI.
func NewSettlementFilterer() (*SettlementFilterer, error) {
	parsed, err := ethabi.JSON(strings.NewReader(SettlementABI))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse settlement contract ABI")
	}
	return &SettlementFilterer{abi: parsed}, nil
}

// OrderFilledID returns the topic identifying OrderFilled logs.
func (f *SettlementFilterer) OrderFilledID() ethcmn.Hash {
	return f.abi.Events[EventOrderFilled].ID
}

// MarketSettledID returns the topic identifying MarketSettled logs.
func (f *SettlementFilterer) MarketSettledID() ethcmn.Hash {
	return f.abi.Events[EventMarketSettled].ID
}

// ParseOrderFilled unpacks an OrderFilled log.
func (f *SettlementFilterer) ParseOrderFilled(log ethtypes.Log) (*SettlementOrderFilled, error) {
	if len(log.Topics) == 0 || log.Topics[0] != f.OrderFilledID() {
		return nil, ErrNotSettlementEvent
	}
	event := &SettlementOrderFilled{Raw: log}
	if err := f.unpackLog(event, EventOrderFilled, log); err != nil {
		return nil, err
	}
	return event, nil
}

// ParseMarketSettled unpacks a MarketSettled log.
func (f *SettlementFilterer) ParseMarketSettled(log ethtypes.Log) (*SettlementMarketSettled, error) {
	if len(log.Topics) == 0 || log.Topics[0] != f.MarketSettledID() {
		return nil, ErrNotSettlementEvent
	}
	event := &SettlementMarketSettled{Raw: log}
	if err := f.unpackLog(event, EventMarketSettled, log); err != nil {
		return nil, err
	}
	return event, nil
}

func (f *SettlementFilterer) unpackLog(out interface{}, name string, log ethtypes.Log) error {
	if len(log.Data) > 0 {
		if err := f.abi.UnpackIntoInterface(out, name, log.Data); err != nil {
			return errors.Wrapf(err, "couldn't unpack %s event data", name)
		}
	}
	var indexed ethabi.Arguments
	for _, arg := range f.abi.Events[name].Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := ethabi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
		return errors.Wrapf(err, "couldn't parse %s event topics", name)
	}
	return nil
}
