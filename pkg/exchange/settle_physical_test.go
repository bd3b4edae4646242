// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"testing"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/merkle"
)

// physicalEnv opens a fully collateralized physical deal: 2000/kg x 5kg with
// 100% initial margin so the buyer vault covers the whole purchase price.
func physicalEnv(t *testing.T, mods ...func(*OpenDealParams)) (*env, *core.Deal) {
	v := newEnv(t, func(p *MarketParams) { p.InitialMarginBps = 10_000 })
	deal := v.openDeal(append([]func(*OpenDealParams){func(p *OpenDealParams) {
		p.PhysicalDelivery = true
		p.AgreedPricePerKG = 2000
		p.QuantityKG = 5
	}}, mods...)...)
	return v, deal
}

func TestPhysicalPartialThenFullDelivery(t *testing.T) {
	v, deal := physicalEnv(t)
	v.require.Equal(uint64(10_000), deal.InitialMarginEach)

	// First tranche: 2kg mints 2000 delivery units and pays 4000.
	v.require.NoError(v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 2, nil, nil))
	v.require.Equal(uint64(2000), v.ledger.BalanceOf(v.buyerCftAccount))
	v.require.Equal(uint64(4000), v.ledger.BalanceOf(v.farmerReceive))

	got, _ := v.ex.GetDeal(deal.ID)
	v.require.Equal(uint64(2), got.DeliveredKGTotal)
	v.require.False(got.Settled)

	// Second tranche completes the quantity: 3000 more units, 6000 more quote,
	// then both residuals unwind and the deal settles.
	v.require.NoError(v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 3, nil, nil))
	v.require.Equal(uint64(5000), v.ledger.BalanceOf(v.buyerCftAccount))
	v.require.Equal(uint64(4000+6000+10_000), v.ledger.BalanceOf(v.farmerReceive))
	v.require.Zero(v.ledger.BalanceOf(deal.BuyerVault))
	v.require.Zero(v.ledger.BalanceOf(deal.FarmerVault))

	got, _ = v.ex.GetDeal(deal.ID)
	v.require.True(got.Settled)
	v.require.Equal(uint64(5), got.DeliveredKGTotal)

	// A third call fails: the deal is settled.
	err := v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 1, nil, nil)
	v.require.ErrorIs(err, core.ErrAlreadySettled)
}

func TestPhysicalDeliveryCap(t *testing.T) {
	v, deal := physicalEnv(t)

	err := v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 6, nil, nil)
	v.require.ErrorIs(err, core.ErrExceedsQuantity)

	v.require.NoError(v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 4, nil, nil))
	err = v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 2, nil, nil)
	v.require.ErrorIs(err, core.ErrExceedsQuantity)

	// Rejection leaves the accounting untouched.
	got, _ := v.ex.GetDeal(deal.ID)
	v.require.Equal(uint64(4), got.DeliveredKGTotal)
}

func TestPhysicalMerkleGated(t *testing.T) {
	leaves := [][]byte{
		[]byte("lot-1:2kg"),
		[]byte("lot-2:3kg"),
	}
	root := merkle.BuildRoot(leaves)
	v, deal := physicalEnv(t, func(p *OpenDealParams) { p.MerkleRoot = &root })

	// Missing leaf.
	err := v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 2, nil, nil)
	v.require.ErrorIs(err, core.ErrBadMerkleProof)

	// Wrong proof.
	proof, perr := merkle.Proof(leaves, 0)
	v.require.NoError(perr)
	err = v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 2, proof, leaves[1])
	v.require.ErrorIs(err, core.ErrBadMerkleProof)

	// Valid proof settles the tranche.
	v.require.NoError(v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 2, proof, leaves[0]))
	got, _ := v.ex.GetDeal(deal.ID)
	v.require.Equal(uint64(2), got.DeliveredKGTotal)
}

func TestPhysicalVerifierOnly(t *testing.T) {
	v, deal := physicalEnv(t)
	err := v.ex.VerifyAndSettlePhysical(v.buyer, deal.ID, 1, nil, nil)
	v.require.ErrorIs(err, core.ErrUnauthorized)
}

func TestPhysicalRejectsZeroAndCashDeals(t *testing.T) {
	v, deal := physicalEnv(t)
	err := v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 0, nil, nil)
	v.require.ErrorIs(err, core.ErrInvalidArgument)

	cash := newEnv(t)
	cashDeal := cash.openDeal()
	err = cash.ex.VerifyAndSettlePhysical(cash.verifier, cashDeal.ID, 1, nil, nil)
	cash.require.ErrorIs(err, core.ErrInvalidArgument)
}

func TestPhysicalRejectsLiquidatedDeal(t *testing.T) {
	v, deal := physicalEnv(t)
	v.ex.deals[deal.ID].Liquidated = true

	err := v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 1, nil, nil)
	v.require.ErrorIs(err, core.ErrInvalidArgument)
}

func TestPhysicalReentrancyGuard(t *testing.T) {
	v, deal := physicalEnv(t)
	v.ex.deals[deal.ID].Settling = true

	err := v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 1, nil, nil)
	v.require.ErrorIs(err, core.ErrReentrancy)
}

func TestPhysicalMintAuthorityIsExclusive(t *testing.T) {
	v, deal := physicalEnv(t)

	// Nothing but the derived mint authority can mint the delivery token.
	err := v.ledger.MintTo(v.cftMint, v.buyerCftAccount, 1, v.authority)
	v.require.Error(err)

	v.require.NoError(v.ex.VerifyAndSettlePhysical(v.verifier, deal.ID, 5, nil, nil))
	v.require.Equal(uint64(5000), v.ledger.BalanceOf(v.buyerCftAccount))
}
