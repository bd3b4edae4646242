// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"fmt"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/safemath"
)

// InitCftMint creates the delivery-token mint for a market-to-be. The mint is
// placed under the derived mint authority; nothing else can ever mint it.
func (e *Exchange) InitCftMint(authority, cftMint ids.ID, decimals uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cftMint.IsZero() || authority.IsZero() {
		return fmt.Errorf("%w: zero mint or authority", core.ErrInvalidArgument)
	}
	// 10^decimals must stay representable for delivery minting.
	if _, err := safemath.Pow10(decimals); err != nil {
		return fmt.Errorf("%w: cft decimals %d", core.ErrMathOverflow, decimals)
	}
	mintAuth, _ := ids.CftMintAuthAddress(e.programID, cftMint)
	if err := e.ledger.CreateMint(cftMint, decimals, mintAuth); err != nil {
		return fmt.Errorf("%w: %v", core.ErrAlreadyExists, err)
	}

	e.emit(core.CftMintInitialized{
		BaseEvent: core.BaseEvent{Type: core.EventTypeCftMintInitialized, Timestamp: e.now()},
		Mint:      cftMint,
		MintAuth:  mintAuth,
		Decimals:  decimals,
		Authority: authority,
	})
	e.log.Info(fmt.Sprintf("cft mint initialized: %s decimals=%d", cftMint, decimals))
	return nil
}

// MarketParams carries the economics of a new market.
type MarketParams struct {
	Authority            ids.ID
	Verifier             ids.ID
	OraclePublisher      ids.ID
	CftMint              ids.ID
	CftDecimals          uint8
	QuoteMint            ids.ID
	FeeTreasury          ids.ID
	InsuranceTreasury    ids.ID
	SettlementTS         int64
	ContractSizeKG       uint64
	InitialMarginBps     uint16
	MaintenanceMarginBps uint16
	FeeBps               uint16
	FarmerFeeBps         uint16
	BuyerFeeBps          uint16
	InsuranceBps         uint16
	MinTransferAmount    uint64
	MaxNotionalPerDeal   uint64
	MaxQtyPerDeal        uint64
	MaxOracleAgeSec      int64
	TwapWindowSec        uint64
	PriceMode            core.PriceMode
}

// CreateMarket validates and persists a new market record.
func (e *Exchange) CreateMarket(p MarketParams) (*core.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Authority.IsZero() || p.CftMint.IsZero() || p.QuoteMint.IsZero() {
		return nil, fmt.Errorf("%w: zero authority or mint binding", core.ErrInvalidArgument)
	}
	if p.FeeTreasury.IsZero() || p.InsuranceTreasury.IsZero() {
		return nil, fmt.Errorf("%w: zero treasury binding", core.ErrInvalidArgument)
	}
	for _, bps := range []uint16{p.InitialMarginBps, p.MaintenanceMarginBps, p.FeeBps, p.FarmerFeeBps, p.BuyerFeeBps, p.InsuranceBps} {
		if bps > safemath.BpsDenominator {
			return nil, fmt.Errorf("%w: bps value %d out of range", core.ErrInvalidArgument, bps)
		}
	}
	feeTotal := uint32(p.FeeBps) + uint32(p.FarmerFeeBps) + uint32(p.BuyerFeeBps) + uint32(p.InsuranceBps)
	if feeTotal > safemath.BpsDenominator {
		return nil, fmt.Errorf("%w: fee slices sum to %d bps", core.ErrInvalidArgument, feeTotal)
	}
	if p.MaxOracleAgeSec <= 0 || p.TwapWindowSec == 0 {
		return nil, fmt.Errorf("%w: oracle windows must be positive", core.ErrInvalidArgument)
	}
	if !p.PriceMode.Valid() {
		return nil, fmt.Errorf("%w: price mode %d", core.ErrInvalidArgument, p.PriceMode)
	}

	id, bump := ids.MarketAddress(e.programID, p.Authority, p.CftMint, p.QuoteMint)
	if _, exists := e.markets[id]; exists {
		return nil, fmt.Errorf("%w: market %s", core.ErrAlreadyExists, id)
	}

	m := &core.Market{
		ID:                   id,
		Bump:                 bump,
		Authority:            p.Authority,
		Verifier:             p.Verifier,
		OraclePublisher:      p.OraclePublisher,
		CftMint:              p.CftMint,
		CftDecimals:          p.CftDecimals,
		QuoteMint:            p.QuoteMint,
		FeeTreasury:          p.FeeTreasury,
		InsuranceTreasury:    p.InsuranceTreasury,
		SettlementTS:         p.SettlementTS,
		ContractSizeKG:       p.ContractSizeKG,
		InitialMarginBps:     p.InitialMarginBps,
		MaintenanceMarginBps: p.MaintenanceMarginBps,
		FeeBps:               p.FeeBps,
		FarmerFeeBps:         p.FarmerFeeBps,
		BuyerFeeBps:          p.BuyerFeeBps,
		InsuranceBps:         p.InsuranceBps,
		MinTransferAmount:    p.MinTransferAmount,
		MaxNotionalPerDeal:   p.MaxNotionalPerDeal,
		MaxQtyPerDeal:        p.MaxQtyPerDeal,
		MaxOracleAgeSec:      p.MaxOracleAgeSec,
		TwapWindowSec:        p.TwapWindowSec,
		PriceMode:            p.PriceMode,
		ProgramVersion:       core.ProgramVersion,
	}
	e.commitMarket(m)

	e.emit(core.MarketCreated{
		BaseEvent: core.BaseEvent{Type: core.EventTypeMarketCreated, Timestamp: e.now()},
		Market:    id,
		Authority: p.Authority,
		CftMint:   p.CftMint,
		QuoteMint: p.QuoteMint,
	})
	if e.metrics != nil {
		e.metrics.MarketsCreated.Inc()
	}
	e.log.Info(fmt.Sprintf("market created: %s", id))
	return m.Clone(), nil
}

// SetPaused toggles the market pause flag. Governance operations remain
// callable while paused.
func (e *Exchange) SetPaused(caller, marketID ids.ID, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return err
	}
	if caller != m.Authority {
		return fmt.Errorf("%w: only the market authority may pause", core.ErrUnauthorized)
	}
	work := m.Clone()
	work.Paused = paused
	e.commitMarket(work)
	e.log.Info(fmt.Sprintf("market %s paused=%v", marketID, paused))
	return nil
}

// ProposeRotateOracle records a pending oracle publisher behind a timelock.
func (e *Exchange) ProposeRotateOracle(caller, marketID, newOracle ids.ID, effectiveAfterTS int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return err
	}
	if caller != m.Authority {
		return fmt.Errorf("%w: only the market authority may rotate roles", core.ErrUnauthorized)
	}
	if newOracle.IsZero() {
		return fmt.Errorf("%w: zero oracle", core.ErrInvalidArgument)
	}
	now := e.now()
	if effectiveAfterTS < now+core.MinRotationDelaySec {
		return fmt.Errorf("%w: rotation effective_ts %d is under the %ds timelock", core.ErrInvalidArgument, effectiveAfterTS, core.MinRotationDelaySec)
	}

	work := m.Clone()
	work.PendingOracle = newOracle
	work.PendingOracleEffectiveTS = effectiveAfterTS
	e.commitMarket(work)

	e.emit(core.RoleRotationProposed{
		BaseEvent:   core.BaseEvent{Type: core.EventTypeRoleRotationProposed, Timestamp: now},
		Market:      marketID,
		NewOracle:   newOracle,
		EffectiveTS: effectiveAfterTS,
	})
	return nil
}

// ActivateRotateOracle swaps in the pending oracle once the timelock elapses.
func (e *Exchange) ActivateRotateOracle(caller, marketID ids.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return err
	}
	if caller != m.Authority {
		return fmt.Errorf("%w: only the market authority may rotate roles", core.ErrUnauthorized)
	}
	if m.PendingOracle.IsZero() {
		return fmt.Errorf("%w: no pending oracle rotation", core.ErrInvalidArgument)
	}
	now := e.now()
	if now < m.PendingOracleEffectiveTS {
		return fmt.Errorf("%w: rotation effective at %d", core.ErrGraceNotElapsed, m.PendingOracleEffectiveTS)
	}

	work := m.Clone()
	work.OraclePublisher = work.PendingOracle
	work.PendingOracle = ids.Empty
	work.PendingOracleEffectiveTS = 0
	e.commitMarket(work)

	e.emit(core.RoleRotationActivated{
		BaseEvent: core.BaseEvent{Type: core.EventTypeRoleRotationActivated, Timestamp: now},
		Market:    marketID,
		NewOracle: work.OraclePublisher,
	})
	return nil
}
