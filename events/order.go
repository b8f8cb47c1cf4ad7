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

import (
	"context"

	"code.polarismarkets.io/polaris/types"
)

// Order is raised on every order state change: acceptance, fill, cancel,
// expiry, rejection.
type Order struct {
	*Base
	o types.Order
}

// NewOrderEvent copies the order so the receiver can never observe later
// book mutations.
func NewOrderEvent(ctx context.Context, o *types.Order) *Order {
	return &Order{
		Base: newBase(ctx, OrderEvent),
		o:    *o.Clone(),
	}
}

// Order returns the order payload.
func (o *Order) Order() *types.Order {
	return &o.o
}
