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

package contracts

import (
	"math/big"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcmn "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// SettlementTransactor is a write-only binding to the settlement
// contract.
type SettlementTransactor struct {
	contract *bind.BoundContract
}

// NewSettlementTransactor binds the settlement contract at the given
// address for transactions.
func NewSettlementTransactor(address ethcmn.Address, transactor bind.ContractTransactor) (*SettlementTransactor, error) {
	parsed, err := ethabi.JSON(strings.NewReader(SettlementABI))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse settlement contract ABI")
	}
	contract := bind.NewBoundContract(address, parsed, nil, transactor, nil)
	return &SettlementTransactor{contract: contract}, nil
}

// RecordTrades calls recordTrades on the settlement contract. The
// contract acknowledges each leg with an OrderFilled event.
func (t *SettlementTransactor) RecordTrades(
	opts *bind.TransactOpts,
	marketID [32]byte,
	buyOrderIDs, sellOrderIDs [][32]byte,
	prices, sizes []*big.Int,
) (*ethtypes.Transaction, error) {
	return t.contract.Transact(opts, "recordTrades", marketID, buyOrderIDs, sellOrderIDs, prices, sizes)
}
