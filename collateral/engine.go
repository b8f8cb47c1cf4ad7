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

// Package collateral mirrors each party's free collateral, in ticks. The
// authoritative ledger is the settlement contract; this engine only has
// to answer the execution engine's pre-trade question cheaply.
package collateral

import (
	"sync"

	"code.polarismarkets.io/polaris/logging"

	"github.com/pkg/errors"
)

// ErrInsufficientBalance is returned when a withdrawal exceeds the free
// balance.
var ErrInsufficientBalance = errors.New("insufficient collateral balance")

// Engine keeps the per-party free collateral balances.
type Engine struct {
	log *logging.Logger
	Config

	mu       sync.RWMutex
	balances map[string]uint64
}

// New returns a collateral engine with no balances.
func New(log *logging.Logger, cfg Config) *Engine {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())

	return &Engine{
		log:      log,
		Config:   cfg,
		balances: map[string]uint64{},
	}
}

// Deposit credits a party.
func (e *Engine) Deposit(party string, amount uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balances[party] += amount
	if e.log.IsDebug() {
		e.log.Debug("collateral deposited",
			logging.Party(party),
			logging.Uint64("amount", amount),
			logging.Uint64("balance", e.balances[party]),
		)
	}
}

// Withdraw debits a party, failing if the free balance does not cover it.
func (e *Engine) Withdraw(party string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	balance := e.balances[party]
	if balance < amount {
		return ErrInsufficientBalance
	}
	e.balances[party] = balance - amount
	return nil
}

// Balance returns a party's free collateral.
func (e *Engine) Balance(party string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.balances[party]
}

// HasCollateral implements the execution engine's collateral oracle.
func (e *Engine) HasCollateral(party string, required uint64) bool {
	if bool(e.Permissive) {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.balances[party] >= required
}
