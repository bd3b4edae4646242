// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"fmt"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/merkle"
	"github.com/btorressz/coffee-futures/pkg/safemath"
)

// VerifyAndSettlePhysical accounts one delivery tranche on a physical deal:
// the proof is checked against the committed Merkle root when one exists,
// delivery tokens are minted to the buyer at 10^decimals units per kilogram,
// and the farmer is paid agreed price times delivered quantity out of the
// buyer's margin vault. The final tranche returns residual margin to both
// sides and marks the deal settled.
func (e *Exchange) VerifyAndSettlePhysical(caller, dealID ids.ID, deliveredKG uint64, proof [][32]byte, leaf []byte) error {
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
	if caller != m.Verifier {
		return fmt.Errorf("%w: only the market verifier settles deliveries", core.ErrUnauthorized)
	}
	if !d.PhysicalDelivery {
		return fmt.Errorf("%w: cash deal has no delivery path", core.ErrInvalidArgument)
	}
	if d.Settled {
		return core.ErrAlreadySettled
	}
	if d.Liquidated {
		return fmt.Errorf("%w: deal liquidated", core.ErrInvalidArgument)
	}
	if d.Settling {
		return core.ErrReentrancy
	}
	if deliveredKG == 0 {
		return fmt.Errorf("%w: zero delivery", core.ErrInvalidArgument)
	}

	if d.HasMerkleRoot {
		if len(leaf) == 0 {
			return fmt.Errorf("%w: proof leaf required", core.ErrBadMerkleProof)
		}
		if err := merkle.Verify(d.MerkleRoot, leaf, proof); err != nil {
			return fmt.Errorf("%w: %v", core.ErrBadMerkleProof, err)
		}
	}
	newTotal, err := safemath.Add(d.DeliveredKGTotal, deliveredKG)
	if err != nil || newTotal > d.QuantityKG {
		return fmt.Errorf("%w: %d + %d over %d kg", core.ErrExceedsQuantity, d.DeliveredKGTotal, deliveredKG, d.QuantityKG)
	}

	d.Settling = true
	defer func() { d.Settling = false }()

	unit, err := safemath.Pow10(m.CftDecimals)
	if err != nil {
		return fmt.Errorf("%w: cft unit", core.ErrMathOverflow)
	}
	mintAmount, err := safemath.Mul(deliveredKG, unit)
	if err != nil {
		return fmt.Errorf("%w: mint amount", core.ErrMathOverflow)
	}
	payment, err := safemath.Mul(d.AgreedPricePerKG, deliveredKG)
	if err != nil {
		return fmt.Errorf("%w: delivery payment", core.ErrMathOverflow)
	}

	cftAuth, _ := ids.CftMintAuthAddress(e.programID, m.CftMint)
	if err := e.ledger.MintTo(m.CftMint, d.BuyerCftAccount, mintAmount, cftAuth); err != nil {
		return fmt.Errorf("minting delivery tokens: %w", err)
	}
	if err := e.ledger.Transfer(d.BuyerVault, d.FarmerReceive, payment, d.VaultAuth); err != nil {
		// Undo the mint's economic effect is impossible; the transactional
		// host rolls the whole invocation back. In-core state is untouched.
		return fmt.Errorf("%w: delivery payment: %v", core.ErrInsufficientMargin, err)
	}

	work := d.Clone()
	work.DeliveredKGTotal = newTotal
	completed := newTotal == work.QuantityKG
	if completed {
		if _, err := e.transferAboveDust(m, work.BuyerVault, work.BuyerReceive, e.ledger.BalanceOf(work.BuyerVault), work.VaultAuth); err != nil {
			return fmt.Errorf("returning buyer residual: %w", err)
		}
		if _, err := e.transferAboveDust(m, work.FarmerVault, work.FarmerReceive, e.ledger.BalanceOf(work.FarmerVault), work.VaultAuth); err != nil {
			return fmt.Errorf("returning farmer residual: %w", err)
		}
		work.Settled = true
	}
	work.Settling = false
	e.commitDeal(work)

	now := e.now()
	e.emit(core.SettledPhysical{
		BaseEvent:   core.BaseEvent{Type: core.EventTypeSettledPhysical, Timestamp: now},
		Deal:        dealID,
		DeliveredKG: deliveredKG,
		Cumulative:  newTotal,
		Completed:   completed,
	})
	if e.metrics != nil {
		e.metrics.PhysicalDeliveries.Inc()
	}
	e.log.Info(fmt.Sprintf("physical delivery: %s %dkg (%d/%d)", dealID, deliveredKG, newTotal, work.QuantityKG))
	return nil
}
