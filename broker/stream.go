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
	"context"
	"encoding/json"

	"code.polarismarkets.io/polaris/events"
	"code.polarismarkets.io/polaris/logging"

	"github.com/pkg/errors"
)

// StreamEvent is the wire envelope carrying one bus event over the
// stream socket.
type StreamEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type quarantinePayload struct {
	MarketID string `json:"marketId"`
	Reason   string `json:"reason"`
}

type settledPayload struct {
	MarketID string `json:"marketId"`
	Outcome  bool   `json:"outcome"`
}

func marshalEvent(evt events.Event) ([]byte, error) {
	var payload interface{}
	switch e := evt.(type) {
	case *events.Order:
		payload = e.Order()
	case *events.Trade:
		payload = e.Trade()
	case *events.TradeSettlement:
		payload = e.Trade()
	case *events.MarketQuarantined:
		payload = quarantinePayload{MarketID: e.MarketID(), Reason: e.Reason()}
	case *events.MarketSettled:
		payload = settledPayload{MarketID: e.MarketID(), Outcome: e.Outcome()}
	default:
		return nil, errors.Errorf("event type %s cannot be streamed", evt.Type())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't marshal event payload")
	}
	return json.Marshal(StreamEvent{Type: evt.Type().String(), Payload: raw})
}

// SocketStreamer forwards bus events over the stream socket. It
// subscribes to every event type; Push never blocks, events past the
// buffer are dropped and counted in the logs.
type SocketStreamer struct {
	log    *logging.Logger
	sender *SocketSender
	out    chan []byte
}

// NewSocketStreamer connects the stream socket and starts the drain
// goroutine. The returned streamer is ready to be subscribed on the
// broker.
func NewSocketStreamer(ctx context.Context, log *logging.Logger, cfg Config) (*SocketStreamer, error) {
	sender, err := NewSocketSender(log, &cfg.SocketConfig)
	if err != nil {
		return nil, err
	}
	s := &SocketStreamer{
		log:    log.Named(namedLogger + ".stream"),
		sender: sender,
		out:    make(chan []byte, cfg.SocketQueueSize),
	}
	go s.run(ctx)
	return s, nil
}

// Types implements broker.Subscriber.
func (s *SocketStreamer) Types() []events.Type {
	return []events.Type{events.All}
}

// Push implements broker.Subscriber, it never blocks.
func (s *SocketStreamer) Push(evts ...events.Event) {
	for _, evt := range evts {
		buf, err := marshalEvent(evt)
		if err != nil {
			s.log.Error("unstreamable event", logging.Error(err))
			continue
		}
		select {
		case s.out <- buf:
		default:
			s.log.Warn("stream buffer full, dropping event",
				logging.String("type", evt.Type().String()))
		}
	}
}

func (s *SocketStreamer) run(ctx context.Context) {
	defer func() {
		if err := s.sender.Close(); err != nil {
			s.log.Error("failed to close stream socket", logging.Error(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-s.out:
			if err := s.sender.Send(buf); err != nil {
				s.log.Error("failed to stream event", logging.Error(err))
			}
		}
	}
}
