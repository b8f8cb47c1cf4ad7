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

// ChainEventType discriminates the settlement-contract events the monitor
// consumes.
type ChainEventType int8

const (
	ChainEventTypeUnspecified ChainEventType = iota
	ChainEventTypeOrderFilled
	ChainEventTypeMarketSettled
)

func (t ChainEventType) String() string {
	switch t {
	case ChainEventTypeOrderFilled:
		return "order-filled"
	case ChainEventTypeMarketSettled:
		return "market-settled"
	default:
		return "unspecified"
	}
}

// ChainEvent is a single settlement-contract log, delivered at least once.
// (TxHash, LogIndex) is the idempotency key: each identity is applied for
// effect at most once no matter how many times it is observed.
type ChainEvent struct {
	TxHash      string
	LogIndex    uint64
	BlockNumber uint64
	BlockHash   string
	Type        ChainEventType

	OrderFilled   *OrderFilled
	MarketSettled *MarketSettled
}

// ID returns the idempotency key of the event.
func (e *ChainEvent) ID() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

func (e *ChainEvent) String() string {
	return fmt.Sprintf("tx(%s) index(%d) block(%d) type(%s)",
		e.TxHash, e.LogIndex, e.BlockNumber, e.Type)
}

// OrderFilled is the payload of a fill/settlement event emitted by the
// settlement contract once a submitted trade batch is finalized.
type OrderFilled struct {
	OrderID string
	Trader  string
	Price   uint64
	Size    uint64
}

// MarketSettled is emitted when a market resolves to its final outcome.
type MarketSettled struct {
	MarketID string
	Outcome  bool
}

// Checkpoint records the last chain position fully processed for one
// monitored contract. It is persisted together with the batch of events it
// covers so a restart resumes without gap or duplication.
type Checkpoint struct {
	ContractID             string
	LastProcessedBlock     uint64
	LastProcessedBlockHash string
}

func (c *Checkpoint) String() string {
	return fmt.Sprintf("contract(%s) block(%d) hash(%s)",
		c.ContractID, c.LastProcessedBlock, c.LastProcessedBlockHash)
}
