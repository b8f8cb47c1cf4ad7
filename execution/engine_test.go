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

package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"code.polarismarkets.io/polaris/crypto"
	"code.polarismarkets.io/polaris/events"
	"code.polarismarkets.io/polaris/logging"
	"code.polarismarkets.io/polaris/types"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMarketID = "market-1"

type stubBridge struct {
	mu     sync.Mutex
	trades []*types.Trade
	full   bool
}

func (s *stubBridge) Enqueue(trades ...*types.Trade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return 0, types.ErrSettlementBackpressure
	}
	s.trades = append(s.trades, trades...)
	return len(trades), nil
}

func (s *stubBridge) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

func (s *stubBridge) setFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

type stubCollateral struct {
	mu       sync.Mutex
	allow    bool
	required []uint64
}

func (s *stubCollateral) HasCollateral(_ string, required uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.required = append(s.required, required)
	return s.allow
}

type stubAdmission struct{ allow bool }

func (s *stubAdmission) Allow(string) bool { return s.allow }

type nullBroker struct{}

func (nullBroker) Send(events.Event)        {}
func (nullBroker) SendBatch([]events.Event) {}

type trader struct {
	key  []byte
	addr string
}

func newTrader(t *testing.T) *trader {
	t.Helper()
	priv, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &trader{
		key:  ethcrypto.FromECDSA(priv),
		addr: ethcrypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}
}

func (tr *trader) submission(t *testing.T, side types.Side, price, size, nonce uint64, typ types.OrderType) *types.OrderSubmission {
	t.Helper()
	sub := &types.OrderSubmission{
		MarketID: testMarketID,
		Party:    tr.addr,
		Side:     side,
		Price:    price,
		Size:     size,
		Type:     typ,
		Nonce:    nonce,
	}
	digest := crypto.OrderDigest(sub.MarketID, sub.Party, int8(sub.Side), sub.Price, sub.Size, sub.Nonce, int8(sub.Type))
	sig, err := crypto.Sign(digest, tr.key)
	require.NoError(t, err)
	sub.Signature = sig
	return sub
}

func (tr *trader) cancellation(t *testing.T, orderID string) *types.OrderCancellation {
	t.Helper()
	cancel := &types.OrderCancellation{
		MarketID: testMarketID,
		OrderID:  orderID,
		Party:    tr.addr,
	}
	sig, err := crypto.Sign(crypto.CancelDigest(orderID, tr.addr), tr.key)
	require.NoError(t, err)
	cancel.Signature = sig
	return cancel
}

type testEngine struct {
	*Engine
	ctx        context.Context
	bridge     *stubBridge
	collateral *stubCollateral
	admission  *stubAdmission
}

func getTestEngine(t *testing.T) *testEngine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	te := &testEngine{
		ctx:        ctx,
		bridge:     &stubBridge{},
		collateral: &stubCollateral{allow: true},
		admission:  &stubAdmission{allow: true},
	}
	te.Engine = NewEngine(ctx, logging.NewTestLogger(), NewDefaultConfig(), nullBroker{}, te.bridge, te.collateral, te.admission)

	var seq int
	te.Engine.idgen = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return te
}

func (te *testEngine) createMarket(t *testing.T) {
	t.Helper()
	require.NoError(t, te.CreateMarket(&types.Market{ID: testMarketID}))
}

func TestEngineCreateMarket(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)

	assert.ErrorIs(t, e.CreateMarket(&types.Market{ID: testMarketID}), ErrMarketAlreadyExist)
	assert.Equal(t, 1, e.ActiveMarkets())
}

func TestSubmitOrderUnknownMarket(t *testing.T) {
	e := getTestEngine(t)

	_, err := e.SubmitOrder(e.ctx, newTrader(t).submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrInvalidMarketID)
}

func TestSubmitOrderRateLimited(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	e.admission.allow = false

	_, err := e.SubmitOrder(e.ctx, newTrader(t).submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrOrderRateLimited)
}

func TestSubmitOrderMatchesAndHandsOff(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	buyer, seller := newTrader(t), newTrader(t)

	conf, err := e.SubmitOrder(e.ctx, buyer.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)
	assert.Empty(t, conf.Trades)
	assert.Equal(t, types.OrderStatusOpen, conf.Order.Status)
	assert.NotEmpty(t, conf.Order.ID)

	conf, err = e.SubmitOrder(e.ctx, seller.submission(t, types.SideSell, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)
	require.Len(t, conf.Trades, 1)

	trade := conf.Trades[0]
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, uint64(100), trade.Price)
	assert.Equal(t, uint64(10), trade.Size)
	assert.Equal(t, buyer.addr, trade.MakerParty)
	assert.Equal(t, seller.addr, trade.TakerParty)
	assert.Equal(t, conf.Order.SequenceNumber, trade.MatchedAtSequence)

	// the matched trade reached the settlement bridge
	assert.Equal(t, 1, e.bridge.count())
}

func TestSubmitOrderValidationRejections(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	tests := []struct {
		name string
		sub  *types.OrderSubmission
		want types.OrderError
	}{
		{
			name: "price of zero",
			sub:  tr.submission(t, types.SideBuy, 0, 10, 1, types.OrderTypeLimit),
			want: types.ErrInvalidPrice,
		},
		{
			name: "price at certainty",
			sub:  tr.submission(t, types.SideBuy, 10000, 10, 1, types.OrderTypeLimit),
			want: types.ErrInvalidPrice,
		},
		{
			name: "size of zero",
			sub:  tr.submission(t, types.SideBuy, 100, 0, 1, types.OrderTypeLimit),
			want: types.ErrInvalidSize,
		},
		{
			name: "unsupported order type",
			sub:  tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeUnspecified),
			want: types.ErrInvalidOrderType,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.SubmitOrder(e.ctx, tc.sub)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmitOrderExpiryInThePast(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	sub := tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit)
	sub.ExpiresAt = time.Now().Add(-time.Minute)
	_, err := e.SubmitOrder(e.ctx, sub)
	assert.ErrorIs(t, err, types.ErrOrderExpired)
}

func TestSubmitOrderRejectsBadSignature(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	// price tampered after signing
	sub := tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit)
	sub.Price = 101
	_, err := e.SubmitOrder(e.ctx, sub)
	assert.ErrorIs(t, err, types.ErrInvalidSignature)

	// signed by someone else entirely
	other := newTrader(t)
	sub = other.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit)
	sub.Party = tr.addr
	_, err = e.SubmitOrder(e.ctx, sub)
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
}

func TestSubmitOrderRejectsStaleNonce(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	_, err := e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 5, types.OrderTypeLimit))
	require.NoError(t, err)

	// replaying the same nonce is rejected
	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 101, 10, 5, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrStaleNonce)

	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 101, 10, 4, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrStaleNonce)

	// a rejected order must not burn the nonce
	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 0, 10, 6, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrInvalidPrice)
	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 101, 10, 6, types.OrderTypeLimit))
	assert.NoError(t, err)
}

func TestSubmitOrderCollateralCheck(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	// a buyer backs price per unit
	_, err := e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 3000, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)
	// a seller backs the complement
	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideSell, 3000, 10, 2, types.OrderTypeLimit))
	require.NoError(t, err)
	assert.Equal(t, []uint64{30000, 70000}, e.collateral.required)

	e.collateral.allow = false
	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 3000, 10, 3, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrInsufficientCollateral)
}

func TestCancelOrder(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	conf, err := e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	cancelConf, err := e.CancelOrder(e.ctx, tr.cancellation(t, conf.Order.ID))
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, cancelConf.Order.Status)

	_, err = e.CancelOrder(e.ctx, tr.cancellation(t, conf.Order.ID))
	assert.ErrorIs(t, err, types.ErrOrderNotFound)
}

func TestCancelOrderOwnershipAndSignature(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	owner, intruder := newTrader(t), newTrader(t)

	conf, err := e.SubmitOrder(e.ctx, owner.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	_, err = e.CancelOrder(e.ctx, intruder.cancellation(t, conf.Order.ID))
	assert.ErrorIs(t, err, types.ErrNotOrderOwner)

	// right party, wrong key
	cancel := intruder.cancellation(t, conf.Order.ID)
	cancel.Party = owner.addr
	_, err = e.CancelOrder(e.ctx, cancel)
	assert.ErrorIs(t, err, types.ErrInvalidSignature)
}

func TestSettleMarket(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	_, err := e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	require.NoError(t, e.SettleMarket(e.ctx, testMarketID, true))
	assert.Equal(t, 0, e.ActiveMarkets())

	// no trading after resolution
	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 2, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrMarketClosed)

	// the chain may replay the settlement event
	require.NoError(t, e.SettleMarket(e.ctx, testMarketID, true))

	// settlement events for markets this node never traded are ignored
	require.NoError(t, e.SettleMarket(e.ctx, "unknown-market", false))
}

func TestMarketClosesAtScheduledTime(t *testing.T) {
	e := getTestEngine(t)
	closeAt := time.Now().Add(time.Hour)
	require.NoError(t, e.CreateMarket(&types.Market{ID: testMarketID, CloseAt: closeAt}))
	tr := newTrader(t)

	_, err := e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	e.OnTick(e.ctx, closeAt.Add(time.Second))

	// the close op runs before the next submission on the market's worker
	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 2, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrMarketClosed)
	assert.Equal(t, 0, e.ActiveMarkets())
}

func TestOnTickSweepsExpiredOrders(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	sub := tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit)
	sub.ExpiresAt = time.Now().Add(time.Minute)
	conf, err := e.SubmitOrder(e.ctx, sub)
	require.NoError(t, err)

	e.OnTick(e.ctx, sub.ExpiresAt.Add(time.Second))

	// cancelling the swept order fails once the tick has been processed
	_, err = e.CancelOrder(e.ctx, tr.cancellation(t, conf.Order.ID))
	assert.ErrorIs(t, err, types.ErrOrderNotFound)
}

func TestUnwindRestoresRestingOrderVolume(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	maker, taker := newTrader(t), newTrader(t)

	makerConf, err := e.SubmitOrder(e.ctx, maker.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	conf, err := e.SubmitOrder(e.ctx, taker.submission(t, types.SideSell, 100, 4, 1, types.OrderTypeIOC))
	require.NoError(t, err)
	require.Len(t, conf.Trades, 1)

	require.NoError(t, e.UnwindTrade(conf.Trades[0]))

	market, err := e.market(testMarketID)
	require.NoError(t, err)
	order := market.byID[makerConf.Order.ID]
	assert.Equal(t, uint64(10), order.Remaining)
	assert.Equal(t, types.OrderStatusOpen, order.Status)
}

func TestUnwindReinsertsFilledOrder(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	maker, taker := newTrader(t), newTrader(t)

	makerConf, err := e.SubmitOrder(e.ctx, maker.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	conf, err := e.SubmitOrder(e.ctx, taker.submission(t, types.SideSell, 100, 10, 1, types.OrderTypeIOC))
	require.NoError(t, err)
	require.Len(t, conf.Trades, 1)

	require.NoError(t, e.UnwindTrade(conf.Trades[0]))

	// the maker is back on the book at its original price and priority,
	// the IOC taker is not
	market, err := e.market(testMarketID)
	require.NoError(t, err)
	order := market.byID[makerConf.Order.ID]
	assert.Equal(t, uint64(10), order.Remaining)
	assert.Equal(t, types.OrderStatusOpen, order.Status)

	cancelConf, err := e.CancelOrder(e.ctx, maker.cancellation(t, makerConf.Order.ID))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cancelConf.Order.Remaining)
}

func TestUnwindLeavesCancelledOrderOut(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	maker, taker := newTrader(t), newTrader(t)

	makerConf, err := e.SubmitOrder(e.ctx, maker.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	conf, err := e.SubmitOrder(e.ctx, taker.submission(t, types.SideSell, 100, 4, 1, types.OrderTypeIOC))
	require.NoError(t, err)
	require.Len(t, conf.Trades, 1)

	// the maker walks away from the remainder before the unwind lands
	_, err = e.CancelOrder(e.ctx, maker.cancellation(t, makerConf.Order.ID))
	require.NoError(t, err)

	require.NoError(t, e.UnwindTrade(conf.Trades[0]))

	// cancelled liquidity does not come back
	_, err = e.CancelOrder(e.ctx, maker.cancellation(t, makerConf.Order.ID))
	assert.ErrorIs(t, err, types.ErrOrderNotFound)
}

func TestSettlementBackpressureParksAndBlocks(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	maker, taker := newTrader(t), newTrader(t)

	_, err := e.SubmitOrder(e.ctx, maker.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	e.bridge.setFull(true)
	conf, err := e.SubmitOrder(e.ctx, taker.submission(t, types.SideSell, 100, 4, 1, types.OrderTypeIOC))
	require.NoError(t, err)
	require.Len(t, conf.Trades, 1)
	assert.Equal(t, 0, e.bridge.count())

	// parked trades block new submissions until the bridge drains
	_, err = e.SubmitOrder(e.ctx, taker.submission(t, types.SideSell, 100, 4, 2, types.OrderTypeIOC))
	assert.ErrorIs(t, err, types.ErrSettlementBackpressure)

	e.bridge.setFull(false)
	_, err = e.SubmitOrder(e.ctx, taker.submission(t, types.SideSell, 100, 4, 3, types.OrderTypeIOC))
	require.NoError(t, err)

	// the parked trade and the new one both made it through
	assert.Equal(t, 2, e.bridge.count())
}

func TestQuarantinedMarketRefusesEverything(t *testing.T) {
	e := getTestEngine(t)
	e.createMarket(t)
	tr := newTrader(t)

	conf, err := e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 1, types.OrderTypeLimit))
	require.NoError(t, err)

	market, err := e.market(testMarketID)
	require.NoError(t, err)
	require.NoError(t, market.do(e.ctx, func() {
		market.quarantine(fmt.Errorf("matching invariant violated"))
	}))

	_, err = e.SubmitOrder(e.ctx, tr.submission(t, types.SideBuy, 100, 10, 2, types.OrderTypeLimit))
	assert.ErrorIs(t, err, types.ErrMarketQuarantined)
	_, err = e.CancelOrder(e.ctx, tr.cancellation(t, conf.Order.ID))
	assert.ErrorIs(t, err, types.ErrMarketQuarantined)
	assert.Equal(t, 0, e.ActiveMarkets())
}
