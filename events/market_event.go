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

package events

import "context"

// MarketQuarantined is raised when a matching invariant violation stops a
// market. This escalates to the operator, the market will not trade again
// without intervention.
type MarketQuarantined struct {
	*Base
	marketID string
	reason   string
}

// NewMarketQuarantinedEvent builds the quarantine event.
func NewMarketQuarantinedEvent(ctx context.Context, marketID, reason string) *MarketQuarantined {
	return &MarketQuarantined{
		Base:     newBase(ctx, MarketQuarantinedEvent),
		marketID: marketID,
		reason:   reason,
	}
}

// MarketID returns the quarantined market.
func (m *MarketQuarantined) MarketID() string {
	return m.marketID
}

// Reason returns the invariant violation which caused the quarantine.
func (m *MarketQuarantined) Reason() string {
	return m.reason
}

// MarketSettled is raised when the market's outcome is observed on chain
// and all trading stops.
type MarketSettled struct {
	*Base
	marketID string
	outcome  bool
}

// NewMarketSettledEvent builds the settlement event.
func NewMarketSettledEvent(ctx context.Context, marketID string, outcome bool) *MarketSettled {
	return &MarketSettled{
		Base:     newBase(ctx, MarketSettledEvent),
		marketID: marketID,
		outcome:  outcome,
	}
}

// MarketID returns the settled market.
func (m *MarketSettled) MarketID() string {
	return m.marketID
}

// Outcome returns the binary outcome the market resolved to.
func (m *MarketSettled) Outcome() bool {
	return m.outcome
}
