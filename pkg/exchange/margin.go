// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"fmt"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/safemath"
)

// maintenanceMargin computes ceil(refPrice * quantity * bps / 10000).
func maintenanceMargin(refPrice, quantityKG uint64, bps uint16) (uint64, error) {
	notional, err := safemath.Mul(refPrice, quantityKG)
	if err != nil {
		return 0, err
	}
	return safemath.ApplyBpsCeil(notional, bps)
}

// unrealizedPnl returns |pnl| and its sign at refPrice: positive means the
// buyer gains (price moved up on the farmer), negative the reverse.
func unrealizedPnl(refPrice, agreedPrice, quantityKG uint64) (uint64, int, error) {
	diff, sign := safemath.AbsDiff(refPrice, agreedPrice)
	if sign == 0 {
		return 0, 0, nil
	}
	abs, err := safemath.Mul(diff, quantityKG)
	if err != nil {
		return 0, 0, err
	}
	return abs, sign, nil
}

// MarkToMarket re-evaluates a deal against the current reference price. It is
// permissionless: anyone may push a deal through the margin-call window once
// the losing side's equity drops below maintenance. Equity recovering above
// maintenance clears a pending margin call.
func (e *Exchange) MarkToMarket(dealID ids.ID) error {
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
		return nil
	}

	now := e.now()
	refPrice, err := e.riskReferencePrice(m, now)
	if err != nil {
		return err
	}
	pnlAbs, sign, err := unrealizedPnl(refPrice, d.AgreedPricePerKG, d.QuantityKG)
	if err != nil {
		return fmt.Errorf("%w: pnl", core.ErrMathOverflow)
	}

	work := d.Clone()
	if sign == 0 {
		if work.MarginCallTS != 0 {
			work.MarginCallTS = 0
			e.commitDeal(work)
		}
		return nil
	}

	loserVault := work.FarmerVault
	if sign < 0 {
		loserVault = work.BuyerVault
	}
	maintenance, err := maintenanceMargin(refPrice, work.QuantityKG, m.MaintenanceMarginBps)
	if err != nil {
		return fmt.Errorf("%w: maintenance margin", core.ErrMathOverflow)
	}

	loserBalance := e.ledger.BalanceOf(loserVault)
	// Effective equity of the losing side, floored at zero when the unrealized
	// loss exceeds the posted collateral.
	var equity uint64
	undercollateralized := pnlAbs >= loserBalance
	if !undercollateralized {
		equity = loserBalance - pnlAbs
	}

	if undercollateralized || equity < maintenance {
		switch {
		case work.MarginCallTS == 0:
			work.MarginCallTS = now
			e.commitDeal(work)
			e.emit(core.MarginCalled{
				BaseEvent: core.BaseEvent{Type: core.EventTypeMarginCalled, Timestamp: now},
				Deal:      dealID,
				RefPrice:  refPrice,
				TS:        now,
			})
			if e.metrics != nil {
				e.metrics.MarginCalls.Inc()
			}
		case now >= work.MarginCallTS+work.MarginCallGraceSec:
			work.Liquidated = true
			e.commitDeal(work)
			e.emit(core.LiquidationFlagged{
				BaseEvent: core.BaseEvent{Type: core.EventTypeLiquidationFlagged, Timestamp: now},
				Deal:      dealID,
				TS:        now,
			})
			if e.metrics != nil {
				e.metrics.Liquidations.Inc()
			}
		}
		return nil
	}

	if work.MarginCallTS != 0 {
		work.MarginCallTS = 0
		e.commitDeal(work)
	}
	return nil
}

// MarginCall lets the market authority override the grace window on a deal
// and optionally start the clock immediately.
func (e *Exchange) MarginCall(caller, dealID ids.ID, graceSec int64, startNow bool) error {
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
	if caller != m.Authority {
		return fmt.Errorf("%w: only the market authority may override margin calls", core.ErrUnauthorized)
	}
	if d.Settled {
		return core.ErrAlreadySettled
	}
	if graceSec < 0 {
		return fmt.Errorf("%w: negative grace", core.ErrInvalidArgument)
	}

	now := e.now()
	work := d.Clone()
	work.MarginCallGraceSec = graceSec
	if startNow && work.MarginCallTS == 0 {
		work.MarginCallTS = now
	}
	e.commitDeal(work)

	if startNow {
		refPrice := referencePrice(m)
		e.emit(core.MarginCalled{
			BaseEvent: core.BaseEvent{Type: core.EventTypeMarginCalled, Timestamp: now},
			Deal:      dealID,
			RefPrice:  refPrice,
			TS:        work.MarginCallTS,
		})
		if e.metrics != nil {
			e.metrics.MarginCalls.Inc()
		}
	}
	return nil
}

// FlagLiquidation flips a margin-called deal into liquidation once the grace
// window has fully elapsed. Permissionless, like MarkToMarket.
func (e *Exchange) FlagLiquidation(dealID ids.ID) error {
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
		return nil
	}
	if d.MarginCallTS == 0 {
		return core.ErrMarginNotCalled
	}
	now := e.now()
	if now < d.MarginCallTS+d.MarginCallGraceSec {
		return fmt.Errorf("%w: grace ends at %d", core.ErrGraceNotElapsed, d.MarginCallTS+d.MarginCallGraceSec)
	}

	work := d.Clone()
	work.Liquidated = true
	e.commitDeal(work)

	e.emit(core.LiquidationFlagged{
		BaseEvent: core.BaseEvent{Type: core.EventTypeLiquidationFlagged, Timestamp: now},
		Deal:      dealID,
		TS:        now,
	})
	if e.metrics != nil {
		e.metrics.Liquidations.Inc()
	}
	return nil
}
