// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"testing"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
)

func TestMarkToMarketHealthyDeal(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()
	v.require.NoError(v.publish(1500, 1))

	// Flat price: nothing to call.
	v.require.NoError(v.ex.MarkToMarket(deal.ID))
	got, _ := v.ex.GetDeal(deal.ID)
	v.require.Zero(got.MarginCallTS)
	v.require.False(got.Liquidated)
}

func TestMarkToMarketRequiresFreshOracle(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	v.require.ErrorIs(v.ex.MarkToMarket(deal.ID), core.ErrStaleOracle)

	v.require.NoError(v.publish(1500, 1))
	v.now += v.market.MaxOracleAgeSec + 1
	v.require.ErrorIs(v.ex.MarkToMarket(deal.ID), core.ErrStaleOracle)
}

func TestLiquidationPath(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal() // margin each 1500, grace 60s

	// Price moves 300 against the farmer: pnl 3000 wipes the 1500 vault, so
	// equity 0 sits below maintenance ceil(18000*5%)=900.
	v.require.NoError(v.publish(1500, 1))
	v.require.NoError(v.publish(1800, 2))

	callTime := v.now
	v.require.NoError(v.ex.MarkToMarket(deal.ID))
	got, _ := v.ex.GetDeal(deal.ID)
	v.require.Equal(callTime, got.MarginCallTS)
	v.require.False(got.Liquidated)

	// Inside the grace window nothing changes.
	v.now = callTime + 30
	v.require.NoError(v.ex.MarkToMarket(deal.ID))
	got, _ = v.ex.GetDeal(deal.ID)
	v.require.False(got.Liquidated)

	// Past the grace window the deal is flagged.
	v.now = callTime + 61
	v.require.NoError(v.ex.MarkToMarket(deal.ID))
	got, _ = v.ex.GetDeal(deal.ID)
	v.require.True(got.Liquidated)

	kinds := v.eventKinds()
	v.require.Contains(kinds, core.EventTypeMarginCalled)
	v.require.Contains(kinds, core.EventTypeLiquidationFlagged)

	// A liquidated deal settles without waiting for settlement_ts.
	v.require.NoError(v.ex.SettleCash(deal.ID))
	got, _ = v.ex.GetDeal(deal.ID)
	v.require.True(got.Settled)
}

func TestMarginCallClearsOnRecovery(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	v.require.NoError(v.publish(1500, 1))
	v.require.NoError(v.publish(1800, 2))
	v.require.NoError(v.ex.MarkToMarket(deal.ID))
	got, _ := v.ex.GetDeal(deal.ID)
	v.require.NotZero(got.MarginCallTS)

	// The farmer tops up well past maintenance; the call clears.
	v.require.NoError(v.ex.TopUpMargin(v.farmer, deal.ID, v.farmerFunding, 10_000))
	v.require.NoError(v.ex.MarkToMarket(deal.ID))
	got, _ = v.ex.GetDeal(deal.ID)
	v.require.Zero(got.MarginCallTS)
	v.require.False(got.Liquidated)
}

func TestAuthorityMarginCallOverride(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()
	v.require.NoError(v.publish(1500, 1))

	v.require.ErrorIs(v.ex.MarginCall(v.farmer, deal.ID, 10, true), core.ErrUnauthorized)
	v.require.NoError(v.ex.MarginCall(v.authority, deal.ID, 10, true))

	got, _ := v.ex.GetDeal(deal.ID)
	v.require.Equal(int64(10), got.MarginCallGraceSec)
	v.require.Equal(v.now, got.MarginCallTS)
}

func TestFlagLiquidationGuards(t *testing.T) {
	v := newEnv(t)
	deal := v.openDeal()

	v.require.ErrorIs(v.ex.FlagLiquidation(deal.ID), core.ErrMarginNotCalled)

	v.require.NoError(v.ex.MarginCall(v.authority, deal.ID, 60, true))
	v.require.ErrorIs(v.ex.FlagLiquidation(deal.ID), core.ErrGraceNotElapsed)

	v.now += 60
	v.require.NoError(v.ex.FlagLiquidation(deal.ID))
	got, _ := v.ex.GetDeal(deal.ID)
	v.require.True(got.Liquidated)

	// Idempotent once flagged.
	v.require.NoError(v.ex.FlagLiquidation(deal.ID))
}

func TestFlagLiquidationUnknownDeal(t *testing.T) {
	v := newEnv(t)
	v.require.ErrorIs(v.ex.FlagLiquidation(ids.GenerateTestID()), core.ErrNotFound)
}
