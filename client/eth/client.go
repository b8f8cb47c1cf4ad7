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

package eth

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// heightCacheTTL is roughly one Ethereum block time; there is no point
// asking the node for the head more often than it can change.
const heightCacheTTL = 15 * time.Second

// ETHClient ...
type ETHClient interface {
	bind.ContractBackend
	ChainID(context.Context) (*big.Int, error)
	HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error)
}

// Client wraps an Ethereum RPC client with a cached chain head.
type Client struct {
	ETHClient

	mu                  sync.Mutex
	curHeightLastUpdate time.Time
	curHeight           uint64
}

// Dial connects to the Ethereum node at rawURL.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	ethClient, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "could not instantiate ethereum client")
	}
	return &Client{ETHClient: ethClient}, nil
}

// CurrentHeight returns the chain head block number, cached for about one
// block time to avoid spamming the node.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now := time.Now(); c.curHeightLastUpdate.Add(heightCacheTTL).Before(now) {
		h, err := c.HeaderByNumber(ctx, nil)
		if err != nil {
			return c.curHeight, err
		}
		c.curHeightLastUpdate = now
		c.curHeight = h.Number.Uint64()
	}

	return c.curHeight, nil
}
