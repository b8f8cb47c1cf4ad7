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

package main

import (
	"context"
	"crypto/ecdsa"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"code.polarismarkets.io/polaris/admin"
	"code.polarismarkets.io/polaris/admission"
	"code.polarismarkets.io/polaris/broker"
	"code.polarismarkets.io/polaris/checkpoint"
	"code.polarismarkets.io/polaris/client/eth"
	"code.polarismarkets.io/polaris/collateral"
	"code.polarismarkets.io/polaris/config"
	"code.polarismarkets.io/polaris/evtmonitor"
	"code.polarismarkets.io/polaris/evtmonitor/contracts"
	"code.polarismarkets.io/polaris/execution"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/metrics"
	"code.polarismarkets.io/polaris/settlement"
	"code.polarismarkets.io/polaris/types"

	ethcmn "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a polaris node",
	Long:  "Run a polaris node as defined by the config file under the root directory",
	RunE:  runNode,
}

// deferredUnwinder breaks the construction cycle between the settlement
// bridge and the execution engine: the bridge needs an unwinder before
// the engine, which needs the bridge, exists.
type deferredUnwinder struct {
	engine *execution.Engine
}

func (d *deferredUnwinder) UnwindTrade(t *types.Trade) error {
	if d.engine == nil {
		return errors.New("execution engine not wired yet")
	}
	return d.engine.UnwindTrade(t)
}

func runNode(_ *cobra.Command, _ []string) error {
	log := logging.NewLoggerFromEnv("dev")
	defer log.AtExit()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgwatchr, err := config.NewFromFile(ctx, log, rootPath, rootPath)
	if err != nil {
		return errors.Wrap(err, "unable to start config watcher")
	}
	conf := cfgwatchr.Get()

	log = logging.NewLoggerFromEnv(conf.Logging.Environment)

	bkr := broker.New(log, conf.Broker)
	if bool(conf.Broker.SocketConfig.Enabled) {
		streamer, err := broker.NewSocketStreamer(ctx, log, conf.Broker)
		if err != nil {
			return errors.Wrap(err, "unable to start event stream")
		}
		bkr.Subscribe(streamer)
	}

	store, err := checkpoint.NewStore(log, conf.Checkpoint)
	if err != nil {
		return errors.Wrap(err, "unable to open checkpoint store")
	}
	defer store.Close()

	col := collateral.New(log, conf.Collateral)
	adm := admission.New(ctx, log, conf.Admission)

	ethClient, err := eth.Dial(ctx, conf.EvtMonitor.NodeEndpoint)
	if err != nil {
		return errors.Wrap(err, "unable to dial ethereum node")
	}
	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to resolve chain id")
	}

	transactor, err := contracts.NewSettlementTransactor(
		ethcmn.HexToAddress(conf.EvtMonitor.ContractAddress), ethClient)
	if err != nil {
		return err
	}
	key, err := loadOperatorKey(rootPath, conf.Settlement.OperatorKeyFile)
	if err != nil {
		return errors.Wrap(err, "unable to load operator key")
	}
	submitter, err := settlement.NewChainSubmitter(log, conf.Settlement, transactor, key, chainID)
	if err != nil {
		return err
	}

	unwinder := &deferredUnwinder{}
	bridge := settlement.NewBridge(log, conf.Settlement, submitter, unwinder, bkr)
	engine := execution.NewEngine(ctx, log, conf.Execution, bkr, bridge, col, adm)
	unwinder.engine = engine

	mon, err := evtmonitor.New(log, conf.EvtMonitor, ethClient, store, bridge, engine)
	if err != nil {
		return errors.Wrap(err, "unable to start chain event monitor")
	}

	adminSrv := admin.NewServer(log, conf.Admin,
		admin.NewMarketAdminService(log.Named("admin"), engine, col))
	go func() {
		if err := adminSrv.Start(ctx); err != nil {
			log.Error("admin server stopped", logging.Error(err))
		}
	}()
	cfgwatchr.OnConfigUpdate(func(cfg config.Config) { adminSrv.ReloadConf(cfg.Admin) })

	health := func() metrics.Health {
		h := metrics.Health{
			Status:               "ok",
			MonitorState:         mon.State().String(),
			SettlementQueueDepth: bridge.QueueDepth(),
			PendingSubmissions:   bridge.PendingSubmissions(),
			LastProcessedBlock:   mon.LastProcessedBlock(),
			ActiveMarkets:        engine.ActiveMarkets(),
		}
		var staleness time.Duration
		if t := mon.LastProcessedBlockTime(); !t.IsZero() {
			staleness = time.Since(t)
		}
		h.CheckpointStalenessSeconds = staleness.Seconds()
		if mon.State() == evtmonitor.StateDisconnected ||
			staleness > conf.EvtMonitor.StalenessThreshold.Get() {
			h.Status = "degraded"
		}
		return h
	}
	if err := metrics.Start(conf.Metrics, health); err != nil {
		return errors.Wrap(err, "unable to start metrics server")
	}

	go bridge.Run(ctx)
	go engine.Run(ctx)

	monErr := make(chan error, 1)
	go func() { monErr <- mon.Run(ctx) }()

	log.Info("polaris node started",
		logging.String("root-path", rootPath),
		logging.BigInt("chain-id", chainID),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	return waitExit(log, sig, monErr)
}

// waitExit blocks until a shutdown signal arrives. A terminal monitor
// error leaves matching and settlement submission running: confirmations
// stop and health goes degraded, but the node itself stays up until the
// operator intervenes.
func waitExit(log *logging.Logger, sig <-chan os.Signal, monErr <-chan error) error {
	for {
		select {
		case s := <-sig:
			log.Info("shutting down on signal", logging.String("signal", s.String()))
			return nil
		case err := <-monErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("chain event monitor stopped, running without confirmations",
					logging.Error(err))
			}
			monErr = nil
		}
	}
}

// loadOperatorKey reads the hex encoded secp256k1 signing key.
func loadOperatorKey(root, file string) (*ecdsa.PrivateKey, error) {
	if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}
	buf, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimPrefix(strings.TrimSpace(string(buf)), "0x")
	return ethcrypto.HexToECDSA(raw)
}
