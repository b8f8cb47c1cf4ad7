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

package types

import "fmt"

// SettlementStatus tracks a trade through its on-chain settlement
// lifecycle: Pending -> Submitted -> Confirmed, or Failed after retry
// exhaustion / missed finality.
type SettlementStatus int8

const (
	SettlementStatusUnspecified SettlementStatus = iota
	SettlementStatusPending
	SettlementStatusSubmitted
	SettlementStatusConfirmed
	SettlementStatusFailed
)

func (s SettlementStatus) String() string {
	switch s {
	case SettlementStatusPending:
		return "pending"
	case SettlementStatusSubmitted:
		return "submitted"
	case SettlementStatusConfirmed:
		return "confirmed"
	case SettlementStatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// Trade is the result of two orders crossing. The identity
// (MarketID, MakerOrderID, TakerOrderID, MatchedAtSequence) is immutable
// once created; only SettlementStatus and TxHash ever mutate.
type Trade struct {
	ID           string
	MarketID     string
	MakerOrderID string
	TakerOrderID string
	MakerParty   string
	TakerParty   string
	// Aggressor is the side of the taker order.
	Aggressor         Side
	Price             uint64
	Size              uint64
	MatchedAtSequence uint64

	SettlementStatus SettlementStatus
	// TxHash is empty until the trade has been submitted on-chain.
	TxHash string
}

// Clone returns a copy of the trade.
func (t *Trade) Clone() *Trade {
	cpy := *t
	return &cpy
}

func (t *Trade) String() string {
	return fmt.Sprintf("id(%s) market(%s) maker(%s) taker(%s) price(%d) size(%d) seq(%d) settlement(%s) tx(%s)",
		t.ID, t.MarketID, t.MakerOrderID, t.TakerOrderID, t.Price, t.Size, t.MatchedAtSequence, t.SettlementStatus, t.TxHash)
}
