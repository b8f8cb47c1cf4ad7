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

package matching

import "github.com/pkg/errors"

// InvariantViolation is raised when the book detects a state that must not
// exist: negative remaining, a zero-size trade, a crossed book left
// resting. It is never corrected silently, the owning market is expected
// to quarantine itself.
type InvariantViolation struct {
	reason string
}

func (e InvariantViolation) Error() string {
	return "matching invariant violation: " + e.reason
}

var (
	// ErrInvariantTradeSize is raised when an uncross produces a zero-size
	// trade.
	ErrInvariantTradeSize = InvariantViolation{reason: "zero trade size during uncross"}
	// ErrInvariantCrossedBook is raised when the book is still crossed
	// after matching terminated.
	ErrInvariantCrossedBook = InvariantViolation{reason: "crossed book left unmatched"}
	// ErrInvariantRemaining is raised when an order's remaining exceeds its
	// size.
	ErrInvariantRemaining = InvariantViolation{reason: "order remaining exceeds order size"}

	// ErrInvalidMarketID is returned when an order is submitted to a book
	// for a different market.
	ErrInvalidMarketID = errors.New("order market id does not match the book")
	// ErrOrderAlreadyExists is returned when submitting an order with an id
	// already resting on the book.
	ErrOrderAlreadyExists = errors.New("order already exists on the book")
)

// IsInvariantViolation reports whether err is a matching invariant
// violation.
func IsInvariantViolation(err error) bool {
	var iv InvariantViolation
	return errors.As(err, &iv)
}
