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

package admin

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"code.polarismarkets.io/polaris/logging"

	"github.com/gorilla/rpc/json"
)

// Client talks to a running node over the admin unix socket.
type Client struct {
	log  *logging.Logger
	cfg  Config
	http *http.Client
}

// NewClient returns a client dialing the admin socket from the given
// configuration.
func NewClient(log *logging.Logger, config Config) *Client {
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())
	return &Client{
		log: log,
		cfg: config,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", config.Server.SocketPath)
				},
			},
		},
	}
}

func (c *Client) call(ctx context.Context, method string, args interface{}, reply interface{}) error {
	req, err := json.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("failed to encode client JSON request: %w", err)
	}

	u := url.URL{
		Scheme: "http",
		Host:   "unix",
		Path:   c.cfg.Server.HTTPPath,
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(req))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to post data %q: %w", string(req), err)
	}
	defer resp.Body.Close()

	if err := json.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("failed to decode client JSON response: %w", err)
	}
	return nil
}

// CreateMarket opens a new binary market on a running node.
func (c *Client) CreateMarket(ctx context.Context, args CreateMarketArgs) (CreateMarketReply, error) {
	var reply CreateMarketReply
	err := c.call(ctx, "market.CreateMarket", args, &reply)
	return reply, err
}

// Deposit credits a party on a running node's collateral ledger.
func (c *Client) Deposit(ctx context.Context, args DepositArgs) (DepositReply, error) {
	var reply DepositReply
	err := c.call(ctx, "market.Deposit", args, &reply)
	return reply, err
}

// Withdraw debits a party on a running node's collateral ledger.
func (c *Client) Withdraw(ctx context.Context, args WithdrawArgs) (WithdrawReply, error) {
	var reply WithdrawReply
	err := c.call(ctx, "market.Withdraw", args, &reply)
	return reply, err
}

// Balance reports the collateral balance of a party on a running node.
func (c *Client) Balance(ctx context.Context, args BalanceArgs) (BalanceReply, error) {
	var reply BalanceReply
	err := c.call(ctx, "market.Balance", args, &reply)
	return reply, err
}
