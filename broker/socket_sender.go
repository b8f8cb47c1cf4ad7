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
	"fmt"

	"code.polarismarkets.io/polaris/logging"

	"go.nanomsg.org/mangos/v3/protocol"
	"go.nanomsg.org/mangos/v3/protocol/push"
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

// SocketSender pushes serialized events to a remote event consumer over
// a mangos push socket.
type SocketSender struct {
	log  *logging.Logger
	sock protocol.Socket
}

// NewSocketSender dials the stream socket from the given configuration.
func NewSocketSender(log *logging.Logger, config *SocketConfig) (*SocketSender, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create new socket: %w", err)
	}

	addr := socketAddr(config)
	if err := sock.Dial(addr); err != nil {
		return nil, fmt.Errorf("failed to connect to %v: %w", addr, err)
	}

	log.Info("event stream socket connected", logging.String("address", addr))

	return &SocketSender{
		log:  log,
		sock: sock,
	}, nil
}

// Send pushes one serialized event.
func (s *SocketSender) Send(buf []byte) error {
	if err := s.sock.Send(buf); err != nil {
		return fmt.Errorf("failed to send on socket: %w", err)
	}
	return nil
}

// Close shuts the socket down.
func (s *SocketSender) Close() error {
	return s.sock.Close()
}

func socketAddr(config *SocketConfig) string {
	return fmt.Sprintf("%s://%s:%d", config.TransportType, config.IP, config.Port)
}
