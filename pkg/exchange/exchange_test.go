// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/log"
	"github.com/btorressz/coffee-futures/pkg/token"
)

const t0 = int64(1_700_000_000)

// env wires an engine against a fresh in-memory ledger with one market and
// funded parties, under a controllable clock.
type env struct {
	t       *testing.T
	require *require.Assertions

	ex     *Exchange
	ledger *token.MemLedger
	now    int64

	program   ids.ID
	mintAuth  ids.ID
	authority ids.ID
	verifier  ids.ID
	oracle    ids.ID

	quoteMint ids.ID
	cftMint   ids.ID

	feeTreasury       ids.ID
	insuranceTreasury ids.ID

	farmer          ids.ID
	buyer           ids.ID
	farmerFunding   ids.ID
	buyerFunding    ids.ID
	farmerReceive   ids.ID
	buyerReceive    ids.ID
	buyerCftAccount ids.ID

	market *core.Market
}

func newEnv(t *testing.T, mods ...func(*MarketParams)) *env {
	req := require.New(t)
	v := &env{
		t:                 t,
		require:           req,
		ledger:            token.NewMemLedger(),
		now:               t0,
		program:           ids.GenerateTestID(),
		mintAuth:          ids.GenerateTestID(),
		authority:         ids.GenerateTestID(),
		verifier:          ids.GenerateTestID(),
		oracle:            ids.GenerateTestID(),
		quoteMint:         ids.GenerateTestID(),
		cftMint:           ids.GenerateTestID(),
		feeTreasury:       ids.GenerateTestID(),
		insuranceTreasury: ids.GenerateTestID(),
		farmer:            ids.GenerateTestID(),
		buyer:             ids.GenerateTestID(),
		farmerFunding:     ids.GenerateTestID(),
		buyerFunding:      ids.GenerateTestID(),
		farmerReceive:     ids.GenerateTestID(),
		buyerReceive:      ids.GenerateTestID(),
		buyerCftAccount:   ids.GenerateTestID(),
	}

	ex, err := New(v.program, v.ledger, log.NoOp(), Options{})
	req.NoError(err)
	v.ex = ex
	ex.SetNowFunc(func() int64 { return v.now })

	req.NoError(v.ledger.CreateMint(v.quoteMint, 6, v.mintAuth))
	for _, acct := range []struct {
		id    ids.ID
		owner ids.ID
	}{
		{v.feeTreasury, v.authority},
		{v.insuranceTreasury, v.authority},
		{v.farmerFunding, v.farmer},
		{v.buyerFunding, v.buyer},
		{v.farmerReceive, v.farmer},
		{v.buyerReceive, v.buyer},
	} {
		req.NoError(v.ledger.CreateAccount(acct.id, v.quoteMint, acct.owner))
	}
	req.NoError(v.ledger.MintTo(v.quoteMint, v.farmerFunding, 1_000_000, v.mintAuth))
	req.NoError(v.ledger.MintTo(v.quoteMint, v.buyerFunding, 1_000_000, v.mintAuth))

	req.NoError(ex.InitCftMint(v.authority, v.cftMint, 3))

	params := v.marketParams()
	for _, mod := range mods {
		mod(&params)
	}
	market, err := ex.CreateMarket(params)
	req.NoError(err)
	v.market = market
	return v
}

func (v *env) marketParams() MarketParams {
	return MarketParams{
		Authority:            v.authority,
		Verifier:             v.verifier,
		OraclePublisher:      v.oracle,
		CftMint:              v.cftMint,
		CftDecimals:          3,
		QuoteMint:            v.quoteMint,
		FeeTreasury:          v.feeTreasury,
		InsuranceTreasury:    v.insuranceTreasury,
		SettlementTS:         t0 + 30*86_400,
		ContractSizeKG:       60,
		InitialMarginBps:     1000,
		MaintenanceMarginBps: 500,
		FeeBps:               50,
		FarmerFeeBps:         25,
		BuyerFeeBps:          25,
		InsuranceBps:         100,
		MinTransferAmount:    1,
		MaxNotionalPerDeal:   1_000_000_000,
		MaxQtyPerDeal:        100_000,
		MaxOracleAgeSec:      900,
		TwapWindowSec:        3600,
		PriceMode:            core.PriceModeLast,
	}
}

func (v *env) dealParams() OpenDealParams {
	return OpenDealParams{
		Market:             v.market.ID,
		Farmer:             v.farmer,
		Buyer:              v.buyer,
		FarmerFunding:      v.farmerFunding,
		BuyerFunding:       v.buyerFunding,
		FarmerReceive:      v.farmerReceive,
		BuyerReceive:       v.buyerReceive,
		BuyerCftAccount:    v.buyerCftAccount,
		AgreedPricePerKG:   1500,
		QuantityKG:         10,
		DeadlineTS:         t0 + 20*86_400,
		MarginCallGraceSec: 60,
	}
}

func (v *env) openDeal(mods ...func(*OpenDealParams)) *core.Deal {
	params := v.dealParams()
	for _, mod := range mods {
		mod(&params)
	}
	deal, err := v.ex.OpenDeal(params)
	v.require.NoError(err)
	return deal
}

func (v *env) publish(price, nonce uint64) error {
	return v.ex.PublishPrice(v.oracle, v.market.ID, price, nonce)
}

func (v *env) eventKinds() []core.EventType {
	records := v.ex.Events().Records()
	kinds := make([]core.EventType, len(records))
	for i, rec := range records {
		kinds[i] = rec.Event.Kind()
	}
	return kinds
}

func TestOpenDealEscrowsBothSides(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	// ceil(1500*10 * 10%) per side.
	v.require.Equal(uint64(1500), deal.InitialMarginEach)
	v.require.Equal(uint64(1500), v.ledger.BalanceOf(deal.FarmerVault))
	v.require.Equal(uint64(1500), v.ledger.BalanceOf(deal.BuyerVault))
	v.require.Equal(uint64(998_500), v.ledger.BalanceOf(v.farmerFunding))
	v.require.Equal(uint64(998_500), v.ledger.BalanceOf(v.buyerFunding))
	v.require.True(deal.BothDeposited())

	// Deterministic deal identity: the same parties collide.
	_, err := v.ex.OpenDeal(v.dealParams())
	v.require.ErrorIs(err, core.ErrAlreadyExists)
}

func TestOpenDealAbortsAtomicallyWhenBuyerUnfunded(t *testing.T) {
	v := newEnv(t)
	v.ledger.SetBalance(v.buyerFunding, 0)

	_, err := v.ex.OpenDeal(v.dealParams())
	v.require.ErrorIs(err, core.ErrInsufficientMargin)

	// The farmer leg was unwound and no deal record exists.
	v.require.Equal(uint64(1_000_000), v.ledger.BalanceOf(v.farmerFunding))
	v.require.Empty(v.ex.ListDeals())
}

func TestOpenDealCaps(t *testing.T) {
	v := newEnv(t, func(p *MarketParams) {
		p.MaxNotionalPerDeal = 10_000
		p.MaxQtyPerDeal = 8
	})

	_, err := v.ex.OpenDeal(func() OpenDealParams {
		p := v.dealParams()
		p.QuantityKG = 9 // notional 13500 over cap too, qty checked after notional
		return p
	}())
	v.require.ErrorIs(err, core.ErrCapExceeded)

	_, err = v.ex.OpenDeal(func() OpenDealParams {
		p := v.dealParams()
		p.AgreedPricePerKG = 1000
		p.QuantityKG = 9 // notional 9000 fits, quantity cap 8 does not
		return p
	}())
	v.require.ErrorIs(err, core.ErrCapExceeded)
}

func TestOpenDealDeadlineTolerance(t *testing.T) {
	v := newEnv(t)
	_, err := v.ex.OpenDeal(func() OpenDealParams {
		p := v.dealParams()
		p.DeadlineTS = v.market.SettlementTS + core.DeadlineToleranceSec + 1
		return p
	}())
	v.require.ErrorIs(err, core.ErrInvalidArgument)
}

func TestCancelBeforeDeadlineRefundsBoth(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	v.require.NoError(v.ex.CancelDeal(v.buyer, deal.ID))

	v.require.Zero(v.ledger.BalanceOf(deal.FarmerVault))
	v.require.Zero(v.ledger.BalanceOf(deal.BuyerVault))
	v.require.Equal(uint64(1500), v.ledger.BalanceOf(v.farmerReceive))
	v.require.Equal(uint64(1500), v.ledger.BalanceOf(v.buyerReceive))

	got, ok := v.ex.GetDeal(deal.ID)
	v.require.True(ok)
	v.require.True(got.Settled)

	// Canceling again reports the deal as settled.
	v.require.ErrorIs(v.ex.CancelDeal(v.buyer, deal.ID), core.ErrAlreadySettled)
}

func TestCancelRefusedPastDeadlineWhenFunded(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	v.now = deal.DeadlineTS
	v.require.ErrorIs(v.ex.CancelDeal(v.farmer, deal.ID), core.ErrInvalidArgument)
}

func TestCancelRequiresParty(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()
	v.require.ErrorIs(v.ex.CancelDeal(ids.GenerateTestID(), deal.ID), core.ErrUnauthorized)
}

func TestCloseDealRequiresSettled(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	v.require.ErrorIs(v.ex.CloseDeal(v.farmer, deal.ID), core.ErrNotSettled)

	v.require.NoError(v.ex.CancelDeal(v.farmer, deal.ID))
	v.require.NoError(v.ex.CloseDeal(v.farmer, deal.ID))

	_, ok := v.ex.GetDeal(deal.ID)
	v.require.False(ok)
}

func TestPauseGatesEntrypoints(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()
	v.require.NoError(v.publish(1500, 1))

	v.require.ErrorIs(v.ex.SetPaused(v.farmer, v.market.ID, true), core.ErrUnauthorized)
	v.require.NoError(v.ex.SetPaused(v.authority, v.market.ID, true))

	v.require.ErrorIs(v.publish(1500, 2), core.ErrPaused)
	v.require.ErrorIs(v.ex.TopUpMargin(v.farmer, deal.ID, v.farmerFunding, 100), core.ErrPaused)
	v.require.ErrorIs(v.ex.MarkToMarket(deal.ID), core.ErrPaused)
	v.require.ErrorIs(v.ex.SettleCash(deal.ID), core.ErrPaused)
	_, err := v.ex.OpenDeal(v.dealParams())
	v.require.ErrorIs(err, core.ErrPaused)

	// Cancellation and governance stay live while paused.
	v.require.NoError(v.ex.CancelDeal(v.farmer, deal.ID))
	v.require.NoError(v.ex.CloseDeal(v.farmer, deal.ID))
	v.require.NoError(v.ex.SetPaused(v.authority, v.market.ID, false))
	v.require.NoError(v.publish(1500, 2))
}

func TestOracleRotationTimelock(t *testing.T) {
	v := newEnv(t)
	newOracle := ids.GenerateTestID()

	err := v.ex.ProposeRotateOracle(v.authority, v.market.ID, newOracle, v.now+core.MinRotationDelaySec-1)
	v.require.ErrorIs(err, core.ErrInvalidArgument)

	effective := v.now + core.MinRotationDelaySec
	v.require.NoError(v.ex.ProposeRotateOracle(v.authority, v.market.ID, newOracle, effective))

	v.require.ErrorIs(v.ex.ActivateRotateOracle(v.authority, v.market.ID), core.ErrGraceNotElapsed)

	v.now = effective
	v.require.NoError(v.ex.ActivateRotateOracle(v.authority, v.market.ID))

	// Old publisher is out, new one is in, pending slot is cleared.
	v.require.ErrorIs(v.publish(1500, 1), core.ErrUnauthorized)
	v.require.NoError(v.ex.PublishPrice(newOracle, v.market.ID, 1500, 1))

	m, _ := v.ex.GetMarket(v.market.ID)
	v.require.True(m.PendingOracle.IsZero())
	v.require.ErrorIs(v.ex.ActivateRotateOracle(v.authority, v.market.ID), core.ErrInvalidArgument)
}

func TestTopUpMargin(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	v.require.ErrorIs(v.ex.TopUpMargin(ids.GenerateTestID(), deal.ID, v.farmerFunding, 100), core.ErrUnauthorized)
	v.require.NoError(v.ex.TopUpMargin(v.farmer, deal.ID, v.farmerFunding, 700))

	got, _ := v.ex.GetDeal(deal.ID)
	v.require.Equal(uint64(2200), got.FarmerDeposited)
	v.require.Equal(uint64(2200), v.ledger.BalanceOf(deal.FarmerVault))
}

func TestTopUpDustRejected(t *testing.T) {
	v := newEnv(t, func(p *MarketParams) { p.MinTransferAmount = 50 })
	deal := v.openDeal()
	v.require.ErrorIs(v.ex.TopUpMargin(v.farmer, deal.ID, v.farmerFunding, 49), core.ErrDustTransfer)
}

func TestWithdrawInsuranceAlwaysUnauthorized(t *testing.T) {
	v := newEnv(t)
	v.require.ErrorIs(v.ex.WithdrawInsurance(v.authority, v.market.ID, 1), core.ErrUnauthorized)
}

func TestCreateMarketValidation(t *testing.T) {
	v := newEnv(t)

	p := v.marketParams()
	p.CftMint = ids.GenerateTestID() // avoid address collision with the env market
	p.FeeBps = 10_001
	_, err := v.ex.CreateMarket(p)
	v.require.ErrorIs(err, core.ErrInvalidArgument)

	p = v.marketParams()
	p.CftMint = ids.GenerateTestID()
	p.FeeBps = 5000
	p.InsuranceBps = 5001 // slices sum past 10000
	_, err = v.ex.CreateMarket(p)
	v.require.ErrorIs(err, core.ErrInvalidArgument)

	p = v.marketParams()
	p.QuoteMint = ids.Empty
	_, err = v.ex.CreateMarket(p)
	v.require.ErrorIs(err, core.ErrInvalidArgument)
}
