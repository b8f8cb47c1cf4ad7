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

import "time"

// MarketStatus is the trading status of a binary-outcome market.
type MarketStatus int8

const (
	MarketStatusUnspecified MarketStatus = iota
	MarketStatusActive
	MarketStatusClosed
	MarketStatusSettled
	// MarketStatusQuarantined is entered on a matching invariant violation
	// and only left through operator intervention.
	MarketStatusQuarantined
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "active"
	case MarketStatusClosed:
		return "closed"
	case MarketStatusSettled:
		return "settled"
	case MarketStatusQuarantined:
		return "quarantined"
	default:
		return "unspecified"
	}
}

// Market describes one binary-outcome prediction market.
type Market struct {
	ID     string
	Status MarketStatus
	// CloseAt is the time after which no new orders are accepted. Zero
	// means the market has no scheduled close.
	CloseAt time.Time
}

// CanTrade returns whether the market accepts new orders at the given time.
func (m *Market) CanTrade(now time.Time) bool {
	if m.Status != MarketStatusActive {
		return false
	}
	return m.CloseAt.IsZero() || now.Before(m.CloseAt)
}
