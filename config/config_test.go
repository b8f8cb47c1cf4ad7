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

package config_test

import (
	"context"
	"testing"
	"time"

	"code.polarismarkets.io/polaris/config"
	"code.polarismarkets.io/polaris/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := config.NewDefaultConfig(root)
	cfg.Settlement.BatchSize = 42
	cfg.EvtMonitor.ContractAddress = "0x1111111111111111111111111111111111111111"
	require.NoError(t, config.Write(root, cfg))

	got, err := config.Read(root)
	require.NoError(t, err)
	assert.EqualValues(t, 42, got.Settlement.BatchSize)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", got.EvtMonitor.ContractAddress)
	// untouched sections keep their defaults
	assert.Equal(t, cfg.Broker.SocketQueueSize, got.Broker.SocketQueueSize)
}

func TestReadMissingFile(t *testing.T) {
	_, err := config.Read(t.TempDir())
	require.Error(t, err)
}

func TestWatcherPicksUpFileChanges(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.NewDefaultConfig(root)
	require.NoError(t, config.Write(root, cfg))

	w, err := config.NewFromFile(ctx, logging.NewTestLogger(), root, root)
	require.NoError(t, err)

	updated := make(chan config.Config, 1)
	w.OnConfigUpdate(func(c config.Config) {
		select {
		case updated <- c:
		default:
		}
	})

	cfg.Settlement.BatchSize = 77
	require.NoError(t, config.Write(root, cfg))

	require.Eventually(t, func() bool {
		w.OnTimeUpdate(ctx, time.Now())
		select {
		case c := <-updated:
			return c.Settlement.BatchSize == 77
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)

	assert.EqualValues(t, 77, w.Get().Settlement.BatchSize)
}
