// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"fmt"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/safemath"
)

// feeSlices computes the four fee slices on the settlement notional, each
// rounded down.
func feeSlices(m *core.Market, notional uint64) (core.SettlementFees, error) {
	protocol, err := safemath.ApplyBps(notional, m.FeeBps)
	if err != nil {
		return core.SettlementFees{}, err
	}
	farmer, err := safemath.ApplyBps(notional, m.FarmerFeeBps)
	if err != nil {
		return core.SettlementFees{}, err
	}
	buyer, err := safemath.ApplyBps(notional, m.BuyerFeeBps)
	if err != nil {
		return core.SettlementFees{}, err
	}
	insurance, err := safemath.ApplyBps(notional, m.InsuranceBps)
	if err != nil {
		return core.SettlementFees{}, err
	}
	return core.SettlementFees{Protocol: protocol, Farmer: farmer, Buyer: buyer, Insurance: insurance}, nil
}

// scaleFees shrinks all slices proportionally when the paying vault cannot
// cover the full amount: each slice is multiplied by
// floor(available * 10000 / total) bps. The rounding residue stays in the
// vault, where it is available to the P&L payment; whatever that payment
// leaves flows out with the payer's refund.
func scaleFees(fees core.SettlementFees, available uint64) (core.SettlementFees, error) {
	total := fees.Total()
	if total == 0 || total <= available {
		return fees, nil
	}
	k, err := safemath.MulDiv(available, safemath.BpsDenominator, total)
	if err != nil {
		return core.SettlementFees{}, err
	}
	scale := func(v uint64) uint64 {
		out, _ := safemath.MulDiv(v, k, safemath.BpsDenominator)
		return out
	}
	return core.SettlementFees{
		Protocol:  scale(fees.Protocol),
		Farmer:    scale(fees.Farmer),
		Buyer:     scale(fees.Buyer),
		Insurance: scale(fees.Insurance),
	}, nil
}

// splitFees halves every slice for the zero-P&L case where both vaults share
// the fee burden; the odd unit lands on the farmer side.
func splitFees(fees core.SettlementFees) (farmer, buyer core.SettlementFees) {
	buyer = core.SettlementFees{
		Protocol:  fees.Protocol / 2,
		Farmer:    fees.Farmer / 2,
		Buyer:     fees.Buyer / 2,
		Insurance: fees.Insurance / 2,
	}
	farmer = core.SettlementFees{
		Protocol:  fees.Protocol - buyer.Protocol,
		Farmer:    fees.Farmer - buyer.Farmer,
		Buyer:     fees.Buyer - buyer.Buyer,
		Insurance: fees.Insurance - buyer.Insurance,
	}
	return farmer, buyer
}

// collectFees debits the fee slices from a vault. The non-insurance slices go
// to the fee treasury, less an optional referrer split carved out of the
// protocol slice; the insurance slice goes to the insurance treasury.
// Sub-dust slices are skipped and remain in the vault. Returns the amounts
// actually moved.
func (e *Exchange) collectFees(m *core.Market, d *core.Deal, vault ids.ID, fees core.SettlementFees) (core.SettlementFees, error) {
	var paid core.SettlementFees

	protocolToTreasury := fees.Protocol
	var referrerCut uint64
	if !d.Referrer.IsZero() && d.FeeSplitBps > 0 {
		referrerCut, _ = safemath.ApplyBps(fees.Protocol, d.FeeSplitBps)
		protocolToTreasury = fees.Protocol - referrerCut
	}

	moved, err := e.transferAboveDust(m, vault, d.Referrer, referrerCut, d.VaultAuth)
	if err != nil {
		return paid, err
	}
	paid.Protocol += moved

	moved, err = e.transferAboveDust(m, vault, m.FeeTreasury, protocolToTreasury, d.VaultAuth)
	if err != nil {
		return paid, err
	}
	paid.Protocol += moved

	moved, err = e.transferAboveDust(m, vault, m.FeeTreasury, fees.Farmer, d.VaultAuth)
	if err != nil {
		return paid, err
	}
	paid.Farmer = moved

	moved, err = e.transferAboveDust(m, vault, m.FeeTreasury, fees.Buyer, d.VaultAuth)
	if err != nil {
		return paid, err
	}
	paid.Buyer = moved

	moved, err = e.transferAboveDust(m, vault, m.InsuranceTreasury, fees.Insurance, d.VaultAuth)
	if err != nil {
		return paid, err
	}
	paid.Insurance = moved
	return paid, nil
}

// SettleCash settles a cash deal: the loser's vault pays fees and the P&L
// transfer, then both residuals return to their owners. Runs under the
// settling guard; a settled deal can never settle again.
func (e *Exchange) SettleCash(dealID ids.ID) error {
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
	if d.PhysicalDelivery {
		return fmt.Errorf("%w: physical deal settles by delivery", core.ErrInvalidArgument)
	}
	if d.Settled {
		return core.ErrAlreadySettled
	}
	if d.Settling {
		return core.ErrReentrancy
	}

	now := e.now()
	due := now >= m.SettlementTS ||
		(now >= d.DeadlineTS && d.BothDeposited()) ||
		d.Liquidated
	if !due {
		return fmt.Errorf("%w: settlement at %d", core.ErrDeadlineNotReached, m.SettlementTS)
	}

	d.Settling = true
	defer func() { d.Settling = false }()

	refPrice := referencePrice(m)
	if refPrice == 0 {
		return fmt.Errorf("%w: no price published", core.ErrStaleOracle)
	}
	notional, err := safemath.Mul(refPrice, d.QuantityKG)
	if err != nil {
		return fmt.Errorf("%w: notional", core.ErrMathOverflow)
	}
	pnlAbs, sign, err := unrealizedPnl(refPrice, d.AgreedPricePerKG, d.QuantityKG)
	if err != nil {
		return fmt.Errorf("%w: pnl", core.ErrMathOverflow)
	}
	fees, err := feeSlices(m, notional)
	if err != nil {
		return fmt.Errorf("%w: fees", core.ErrMathOverflow)
	}

	work := d.Clone()
	var paid core.SettlementFees

	if sign != 0 {
		loserVault, winnerReceive := work.FarmerVault, work.BuyerReceive
		if sign < 0 {
			loserVault, winnerReceive = work.BuyerVault, work.FarmerReceive
		}
		scaled, err := scaleFees(fees, e.ledger.BalanceOf(loserVault))
		if err != nil {
			return fmt.Errorf("%w: fee scaling", core.ErrMathOverflow)
		}
		paid, err = e.collectFees(m, work, loserVault, scaled)
		if err != nil {
			return fmt.Errorf("collecting fees: %w", err)
		}
		// P&L transfer, bounded by what the loser still holds.
		var payment uint64
		if feeTotal := scaled.Total(); pnlAbs > feeTotal {
			payment = pnlAbs - feeTotal
		}
		payment = safemath.Min(payment, e.ledger.BalanceOf(loserVault))
		if _, err := e.transferAboveDust(m, loserVault, winnerReceive, payment, work.VaultAuth); err != nil {
			return fmt.Errorf("paying winner: %w", err)
		}
	} else {
		// Zero P&L: fees are still charged on notional, shared by both sides.
		farmerFees, buyerFees := splitFees(fees)
		scaledF, err := scaleFees(farmerFees, e.ledger.BalanceOf(work.FarmerVault))
		if err != nil {
			return fmt.Errorf("%w: fee scaling", core.ErrMathOverflow)
		}
		paidF, err := e.collectFees(m, work, work.FarmerVault, scaledF)
		if err != nil {
			return fmt.Errorf("collecting farmer fees: %w", err)
		}
		scaledB, err := scaleFees(buyerFees, e.ledger.BalanceOf(work.BuyerVault))
		if err != nil {
			return fmt.Errorf("%w: fee scaling", core.ErrMathOverflow)
		}
		paidB, err := e.collectFees(m, work, work.BuyerVault, scaledB)
		if err != nil {
			return fmt.Errorf("collecting buyer fees: %w", err)
		}
		paid = core.SettlementFees{
			Protocol:  paidF.Protocol + paidB.Protocol,
			Farmer:    paidF.Farmer + paidB.Farmer,
			Buyer:     paidF.Buyer + paidB.Buyer,
			Insurance: paidF.Insurance + paidB.Insurance,
		}
	}

	// Residuals return to each side above the dust threshold.
	if _, err := e.transferAboveDust(m, work.FarmerVault, work.FarmerReceive, e.ledger.BalanceOf(work.FarmerVault), work.VaultAuth); err != nil {
		return fmt.Errorf("returning farmer residual: %w", err)
	}
	if _, err := e.transferAboveDust(m, work.BuyerVault, work.BuyerReceive, e.ledger.BalanceOf(work.BuyerVault), work.VaultAuth); err != nil {
		return fmt.Errorf("returning buyer residual: %w", err)
	}

	work.Settled = true
	work.Settling = false
	e.commitDeal(work)

	e.emit(core.SettledCash{
		BaseEvent: core.BaseEvent{Type: core.EventTypeSettledCash, Timestamp: now},
		Deal:      dealID,
		RefPrice:  refPrice,
		PnlAbs:    pnlAbs,
		PnlSign:   sign,
		Fees:      paid,
	})
	if e.metrics != nil {
		e.metrics.CashSettlements.Inc()
		e.metrics.SettlementPnl.Observe(float64(pnlAbs))
		e.metrics.FeesCollected.Add(float64(paid.Protocol + paid.Farmer + paid.Buyer))
		e.metrics.InsuranceCollected.Add(float64(paid.Insurance))
	}
	e.log.Info(fmt.Sprintf("deal settled in cash: %s ref=%d pnl=%d", dealID, refPrice, pnlAbs))
	return nil
}
