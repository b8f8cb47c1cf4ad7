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
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"code.polarismarkets.io/polaris/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestServer(t *testing.T) (Config, *stubMarkets, *stubLedger) {
	t.Helper()

	cfg := NewDefaultConfig()
	cfg.Server.SocketPath = filepath.Join(t.TempDir(), "admin.sock")

	markets := &stubMarkets{}
	ledger := newStubLedger()
	log := logging.NewTestLogger()
	srv := NewServer(log, cfg, NewMarketAdminService(log, markets, ledger))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
			t.Errorf("admin server stopped: %v", err)
		}
	}()

	// wait for the socket to accept connections
	cli := NewClient(log, cfg)
	require.Eventually(t, func() bool {
		_, err := cli.Balance(ctx, BalanceArgs{Party: "probe"})
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	return cfg, markets, ledger
}

func TestAdminSocketRoundTrip(t *testing.T) {
	cfg, markets, _ := getTestServer(t)
	cli := NewClient(logging.NewTestLogger(), cfg)
	ctx := context.Background()

	reply, err := cli.CreateMarket(ctx, CreateMarketArgs{
		ID:      testMarketID,
		CloseAt: time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.True(t, reply.Created)
	require.Len(t, markets.created, 1)
	assert.Equal(t, testMarketID, markets.created[0].ID)

	// service errors must surface through the codec
	_, err = cli.CreateMarket(ctx, CreateMarketArgs{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market id is required")
}

func TestAdminSocketCollateralFlow(t *testing.T) {
	cfg, _, ledger := getTestServer(t)
	cli := NewClient(logging.NewTestLogger(), cfg)
	ctx := context.Background()

	dep, err := cli.Deposit(ctx, DepositArgs{Party: "party-1", Amount: 500})
	require.NoError(t, err)
	assert.EqualValues(t, 500, dep.Balance)

	wd, err := cli.Withdraw(ctx, WithdrawArgs{Party: "party-1", Amount: 200})
	require.NoError(t, err)
	assert.EqualValues(t, 300, wd.Balance)

	bal, err := cli.Balance(ctx, BalanceArgs{Party: "party-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 300, bal.Balance)
	assert.EqualValues(t, 300, ledger.balances["party-1"])
}
