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
	"fmt"

	"code.polarismarkets.io/polaris/logging"

	"go.nanomsg.org/mangos/v3/protocol"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// SocketServer receives streamed events from a running node. This is
// the consumer end of the stream socket, used by the audit store.
type SocketServer struct {
	log  *logging.Logger
	sock protocol.Socket
}

// NewSocketServer listens on the stream socket address from the given
// configuration.
func NewSocketServer(log *logging.Logger, config *SocketConfig) (*SocketServer, error) {
	sock, err := pull.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create new socket: %w", err)
	}

	addr := socketAddr(config)
	if err = sock.Listen(addr); err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %w", addr, err)
	}

	return &SocketServer{
		log:  log,
		sock: sock,
	}, nil
}

// Receive delivers decoded stream events on the given channel until the
// context is cancelled or the socket closes.
func (s *SocketServer) Receive(ctx context.Context, ch chan<- StreamEvent) {
	defer close(ch)
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if err == protocol.ErrClosed {
				return
			}
			s.log.Error("failed to receive message", logging.Error(err))
			continue
		}

		var evt StreamEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			s.log.Error("failed to unmarshal event received", logging.Error(err))
			continue
		}

		select {
		case ch <- evt:
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts the socket down, unblocking Receive.
func (s *SocketServer) Close() error {
	return s.sock.Close()
}
