// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"errors"
	"fmt"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/safemath"
	"github.com/btorressz/coffee-futures/pkg/token"
)

// OpenDealParams describes a new bilateral contract.
type OpenDealParams struct {
	Market ids.ID

	Farmer        ids.ID
	Buyer         ids.ID
	FarmerFunding ids.ID
	BuyerFunding  ids.ID
	FarmerReceive ids.ID
	BuyerReceive  ids.ID
	// BuyerCftAccount receives delivery tokens; required on physical deals.
	BuyerCftAccount ids.ID

	Referrer    ids.ID
	FeeSplitBps uint16

	AgreedPricePerKG   uint64
	QuantityKG         uint64
	PhysicalDelivery   bool
	DeadlineTS         int64
	MarginCallGraceSec int64

	Assets     []ids.ID
	AssetQty   []uint64
	MerkleRoot *[32]byte
}

// OpenDeal validates terms, creates the deal record with its vault authority
// and margin vaults, and escrows initial margin from both parties. Either
// transfer failing aborts the whole operation; a half-funded deal never
// exists.
func (e *Exchange) OpenDeal(p OpenDealParams) (*core.Deal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(p.Market)
	if err != nil {
		return nil, err
	}
	if m.Paused {
		return nil, core.ErrPaused
	}
	if p.Farmer.IsZero() || p.Buyer.IsZero() || p.Farmer == p.Buyer {
		return nil, fmt.Errorf("%w: invalid parties", core.ErrInvalidArgument)
	}
	if p.AgreedPricePerKG == 0 || p.QuantityKG == 0 {
		return nil, fmt.Errorf("%w: zero price or quantity", core.ErrInvalidArgument)
	}
	if p.FeeSplitBps > safemath.BpsDenominator {
		return nil, fmt.Errorf("%w: fee split %d bps", core.ErrInvalidArgument, p.FeeSplitBps)
	}
	notional, err := safemath.Mul(p.AgreedPricePerKG, p.QuantityKG)
	if err != nil {
		return nil, fmt.Errorf("%w: notional", core.ErrMathOverflow)
	}
	if m.MaxNotionalPerDeal > 0 && notional > m.MaxNotionalPerDeal {
		return nil, fmt.Errorf("%w: notional %d over cap %d", core.ErrCapExceeded, notional, m.MaxNotionalPerDeal)
	}
	if m.MaxQtyPerDeal > 0 && p.QuantityKG > m.MaxQtyPerDeal {
		return nil, fmt.Errorf("%w: quantity %d over cap %d", core.ErrCapExceeded, p.QuantityKG, m.MaxQtyPerDeal)
	}
	if len(p.Assets) > core.MaxAssets || len(p.Assets) != len(p.AssetQty) {
		return nil, fmt.Errorf("%w: asset list", core.ErrInvalidArgument)
	}
	now := e.now()
	if p.DeadlineTS <= now {
		return nil, fmt.Errorf("%w: deadline in the past", core.ErrInvalidArgument)
	}
	if p.DeadlineTS > m.SettlementTS+core.DeadlineToleranceSec {
		return nil, fmt.Errorf("%w: deadline beyond settlement tolerance", core.ErrInvalidArgument)
	}
	if p.PhysicalDelivery && p.BuyerCftAccount.IsZero() {
		return nil, fmt.Errorf("%w: physical deal without cft account", core.ErrInvalidArgument)
	}

	dealID, dealBump := ids.DealAddress(e.programID, p.Market, p.Farmer, p.Buyer)
	if _, exists := e.deals[dealID]; exists {
		return nil, fmt.Errorf("%w: deal %s", core.ErrAlreadyExists, dealID)
	}
	vaultAuth, vaultBump := ids.VaultAuthAddress(e.programID, dealID)
	farmerVault, _ := ids.Derive(e.programID, []byte("vault"), dealID[:], []byte("farmer"))
	buyerVault, _ := ids.Derive(e.programID, []byte("vault"), dealID[:], []byte("buyer"))

	initialMargin, err := safemath.ApplyBpsCeil(notional, m.InitialMarginBps)
	if err != nil {
		return nil, fmt.Errorf("%w: initial margin", core.ErrMathOverflow)
	}

	if err := e.ledger.CreateAccount(farmerVault, m.QuoteMint, vaultAuth); err != nil {
		return nil, fmt.Errorf("creating farmer vault: %w", err)
	}
	if err := e.ledger.CreateAccount(buyerVault, m.QuoteMint, vaultAuth); err != nil {
		return nil, fmt.Errorf("creating buyer vault: %w", err)
	}
	if p.PhysicalDelivery {
		err := e.ledger.CreateAccount(p.BuyerCftAccount, m.CftMint, p.Buyer)
		if err != nil && !errors.Is(err, token.ErrAccountExists) {
			return nil, fmt.Errorf("creating buyer cft account: %w", err)
		}
	}

	// Escrow both sides. The buyer leg failing unwinds the farmer leg so the
	// whole operation aborts atomically.
	if err := e.ledger.Transfer(p.FarmerFunding, farmerVault, initialMargin, p.Farmer); err != nil {
		return nil, fmt.Errorf("%w: farmer margin: %v", core.ErrInsufficientMargin, err)
	}
	if err := e.ledger.Transfer(p.BuyerFunding, buyerVault, initialMargin, p.Buyer); err != nil {
		if undo := e.ledger.Transfer(farmerVault, p.FarmerFunding, initialMargin, vaultAuth); undo != nil {
			e.log.Error(fmt.Sprintf("unwinding farmer margin on deal %s: %v", dealID, undo))
		}
		return nil, fmt.Errorf("%w: buyer margin: %v", core.ErrInsufficientMargin, err)
	}

	d := &core.Deal{
		ID:                 dealID,
		Bump:               dealBump,
		Market:             p.Market,
		Farmer:             p.Farmer,
		Buyer:              p.Buyer,
		Referrer:           p.Referrer,
		FeeSplitBps:        p.FeeSplitBps,
		FarmerReceive:      p.FarmerReceive,
		BuyerReceive:       p.BuyerReceive,
		BuyerCftAccount:    p.BuyerCftAccount,
		AgreedPricePerKG:   p.AgreedPricePerKG,
		QuantityKG:         p.QuantityKG,
		PhysicalDelivery:   p.PhysicalDelivery,
		DeadlineTS:         p.DeadlineTS,
		InitialMarginEach:  initialMargin,
		FarmerDeposited:    initialMargin,
		BuyerDeposited:     initialMargin,
		MarginCallGraceSec: p.MarginCallGraceSec,
		VaultAuth:          vaultAuth,
		VaultAuthBump:      vaultBump,
		FarmerVault:        farmerVault,
		BuyerVault:         buyerVault,
		CreatedAt:          now,
	}
	if len(p.Assets) > 0 {
		d.Assets = append([]ids.ID{}, p.Assets...)
		d.AssetQty = append([]uint64{}, p.AssetQty...)
	}
	if p.MerkleRoot != nil {
		d.MerkleRoot = *p.MerkleRoot
		d.HasMerkleRoot = true
	}
	e.commitDeal(d)

	e.emit(core.DealOpened{
		BaseEvent:         core.BaseEvent{Type: core.EventTypeDealOpened, Timestamp: now},
		Deal:              dealID,
		Market:            p.Market,
		Farmer:            p.Farmer,
		Buyer:             p.Buyer,
		QuantityKG:        p.QuantityKG,
		AgreedPricePerKG:  p.AgreedPricePerKG,
		InitialMarginEach: initialMargin,
		PhysicalDelivery:  p.PhysicalDelivery,
	})
	if e.metrics != nil {
		e.metrics.DealsOpened.Inc()
	}
	e.log.Info(fmt.Sprintf("deal opened: %s margin_each=%d", dealID, initialMargin))
	return d.Clone(), nil
}

// TopUpMargin posts additional collateral from one party into its vault.
func (e *Exchange) TopUpMargin(signer, dealID, from ids.ID, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.deal(dealID)
	if err != nil {
		return err
	}
	m, err := e.market(d.Market)
	if err != nil {
		return err
	}
	if m.Paused {
		return core.ErrPaused
	}
	if d.Settled {
		return core.ErrAlreadySettled
	}
	if d.Liquidated {
		return fmt.Errorf("%w: deal liquidated", core.ErrInvalidArgument)
	}
	if amount < m.MinTransferAmount {
		return fmt.Errorf("%w: %d below %d", core.ErrDustTransfer, amount, m.MinTransferAmount)
	}

	var side core.Side
	var vault ids.ID
	switch signer {
	case d.Farmer:
		side, vault = core.SideFarmer, d.FarmerVault
	case d.Buyer:
		side, vault = core.SideBuyer, d.BuyerVault
	default:
		return fmt.Errorf("%w: signer is not a deal party", core.ErrUnauthorized)
	}

	if err := e.ledger.Transfer(from, vault, amount, signer); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInsufficientMargin, err)
	}

	work := d.Clone()
	if side == core.SideFarmer {
		work.FarmerDeposited += amount
	} else {
		work.BuyerDeposited += amount
	}
	e.commitDeal(work)

	e.emit(core.MarginToppedUp{
		BaseEvent: core.BaseEvent{Type: core.EventTypeMarginToppedUp, Timestamp: e.now()},
		Deal:      dealID,
		Side:      side.String(),
		Amount:    amount,
	})
	return nil
}

// CancelDeal unwinds an unsettled deal before its deadline, or at any time
// while one side has yet to fund. Held margin is refunded to both parties.
func (e *Exchange) CancelDeal(caller, dealID ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.deal(dealID)
	if err != nil {
		return err
	}
	m, err := e.market(d.Market)
	if err != nil {
		return err
	}
	if caller != d.Farmer && caller != d.Buyer && caller != m.Authority {
		return fmt.Errorf("%w: not a deal party", core.ErrUnauthorized)
	}
	if d.Settled {
		return core.ErrAlreadySettled
	}
	now := e.now()
	if d.BothDeposited() && now >= d.DeadlineTS {
		return fmt.Errorf("%w: funded deal past deadline must settle", core.ErrInvalidArgument)
	}

	farmerBal := e.ledger.BalanceOf(d.FarmerVault)
	buyerBal := e.ledger.BalanceOf(d.BuyerVault)
	farmerRefund, err := e.transferAboveDust(m, d.FarmerVault, d.FarmerReceive, farmerBal, d.VaultAuth)
	if err != nil {
		return fmt.Errorf("refunding farmer: %w", err)
	}
	buyerRefund, err := e.transferAboveDust(m, d.BuyerVault, d.BuyerReceive, buyerBal, d.VaultAuth)
	if err != nil {
		return fmt.Errorf("refunding buyer: %w", err)
	}

	work := d.Clone()
	work.Settled = true
	e.commitDeal(work)

	e.emit(core.DealCanceled{
		BaseEvent:      core.BaseEvent{Type: core.EventTypeDealCanceled, Timestamp: now},
		Deal:           dealID,
		FarmerRefunded: farmerRefund,
		BuyerRefunded:  buyerRefund,
	})
	if e.metrics != nil {
		e.metrics.DealsCanceled.Inc()
	}
	return nil
}

// CloseDeal reclaims storage for a settled deal.
func (e *Exchange) CloseDeal(caller, dealID ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, err := e.deal(dealID)
	if err != nil {
		return err
	}
	m, err := e.market(d.Market)
	if err != nil {
		return err
	}
	if caller != d.Farmer && caller != d.Buyer && caller != m.Authority {
		return fmt.Errorf("%w: not a deal party", core.ErrUnauthorized)
	}
	if !d.Settled {
		return core.ErrNotSettled
	}

	delete(e.deals, dealID)
	if e.store != nil {
		if err := e.store.DeleteDeal(dealID); err != nil {
			e.log.Error(fmt.Sprintf("deleting deal %s: %v", dealID, err))
		}
	}
	if e.metrics != nil {
		e.metrics.DealsClosed.Inc()
	}
	e.log.Info(fmt.Sprintf("deal closed: %s", dealID))
	return nil
}
