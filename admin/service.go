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

package admin

import (
	"encoding/hex"
	"net/http"
	"time"

	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"

	"github.com/pkg/errors"
)

// Markets is the subset of the execution engine the admin service
// drives.
type Markets interface {
	CreateMarket(mkt *types.Market) error
}

// Ledger is the collateral operations exposed over the admin socket.
type Ledger interface {
	Deposit(party string, amount uint64)
	Withdraw(party string, amount uint64) error
	Balance(party string) uint64
}

// MarketAdminService exposes operator commands for market lifecycle and
// collateral management.
type MarketAdminService struct {
	log        *logging.Logger
	markets    Markets
	collateral Ledger
}

// NewMarketAdminService returns the operator command service backed by
// the given engines.
func NewMarketAdminService(log *logging.Logger, markets Markets, collateral Ledger) *MarketAdminService {
	return &MarketAdminService{
		log:        log,
		markets:    markets,
		collateral: collateral,
	}
}

type CreateMarketArgs struct {
	ID string `json:"id"`
	// CloseAt is an RFC3339 timestamp after which the market stops
	// accepting orders. Empty means no scheduled close.
	CloseAt string `json:"closeAt,omitempty"`
}

type CreateMarketReply struct {
	Created bool `json:"created"`
}

// CreateMarket opens a new binary market on the execution engine. The
// market identifier is the hex encoded bytes32 the settlement contract
// keys the market with, anything else could never settle.
func (s *MarketAdminService) CreateMarket(_ *http.Request, args *CreateMarketArgs, reply *CreateMarketReply) error {
	if args.ID == "" {
		return errors.New("market id is required")
	}
	if raw, err := hex.DecodeString(args.ID); err != nil || len(raw) != 32 {
		return errors.New("market id must be a 32 byte hex string")
	}
	mkt := &types.Market{
		ID:     args.ID,
		Status: types.MarketStatusActive,
	}
	if args.CloseAt != "" {
		closeAt, err := time.Parse(time.RFC3339, args.CloseAt)
		if err != nil {
			return errors.Wrap(err, "invalid closeAt timestamp")
		}
		mkt.CloseAt = closeAt
	}
	if err := s.markets.CreateMarket(mkt); err != nil {
		return err
	}
	s.log.Info("market created over admin socket", logging.MarketID(args.ID))
	reply.Created = true
	return nil
}

type DepositArgs struct {
	Party  string `json:"party"`
	Amount uint64 `json:"amount"`
}

type DepositReply struct {
	Balance uint64 `json:"balance"`
}

// Deposit credits a party on the collateral ledger.
func (s *MarketAdminService) Deposit(_ *http.Request, args *DepositArgs, reply *DepositReply) error {
	if args.Party == "" {
		return errors.New("party is required")
	}
	s.collateral.Deposit(args.Party, args.Amount)
	reply.Balance = s.collateral.Balance(args.Party)
	return nil
}

type WithdrawArgs struct {
	Party  string `json:"party"`
	Amount uint64 `json:"amount"`
}

type WithdrawReply struct {
	Balance uint64 `json:"balance"`
}

// Withdraw debits a party on the collateral ledger.
func (s *MarketAdminService) Withdraw(_ *http.Request, args *WithdrawArgs, reply *WithdrawReply) error {
	if args.Party == "" {
		return errors.New("party is required")
	}
	if err := s.collateral.Withdraw(args.Party, args.Amount); err != nil {
		return err
	}
	reply.Balance = s.collateral.Balance(args.Party)
	return nil
}

type BalanceArgs struct {
	Party string `json:"party"`
}

type BalanceReply struct {
	Balance uint64 `json:"balance"`
}

// Balance reports the collateral balance of a party.
func (s *MarketAdminService) Balance(_ *http.Request, args *BalanceArgs, reply *BalanceReply) error {
	if args.Party == "" {
		return errors.New("party is required")
	}
	reply.Balance = s.collateral.Balance(args.Party)
	return nil
}
