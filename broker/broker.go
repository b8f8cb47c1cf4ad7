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

package broker

import (
	"sync"

	"code.polarismarkets.io/polaris/events"
	"code.polarismarkets.io/polaris/logging"
)

// Interface is where the core sends its events: order state changes,
// trades, settlement transitions, quarantines. The external audit store
// and the fill-notification dispatcher consume the core through this, and
// only this, interface. Sends are fire-and-forget, the core never blocks
// on a consumer.
type Interface interface {
	Send(event events.Event)
	SendBatch(events []events.Event)
}

// Subscriber receives pushed events. Push must not block.
type Subscriber interface {
	Push(evts ...events.Event)
	Types() []events.Type
}

// Broker fans events out to its subscribers.
type Broker struct {
	log *logging.Logger

	mu   sync.RWMutex
	subs []Subscriber
}

// New returns an empty broker.
func New(log *logging.Logger, cfg Config) *Broker {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())
	return &Broker{log: log}
}

// Subscribe registers a subscriber for its declared event types.
func (b *Broker) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Send pushes one event to all interested subscribers.
func (b *Broker) Send(event events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if interested(sub, event.Type()) {
			sub.Push(event)
		}
	}
}

// SendBatch pushes a batch of events, preserving order.
func (b *Broker) SendBatch(evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		for _, event := range evts {
			if interested(sub, event.Type()) {
				sub.Push(event)
			}
		}
	}
}

func interested(s Subscriber, t events.Type) bool {
	for _, st := range s.Types() {
		if st == events.All || st == t {
			return true
		}
	}
	return false
}
