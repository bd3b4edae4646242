// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"fmt"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/safemath"
)

// PublishPrice ingests one oracle update. Nonces must strictly increase and
// consecutive prices may not move more than 25% in either direction. A stale
// chain (gap beyond the market oracle age) is still accepted but resets the
// TWAP accumulators, so the average never bridges a dark window.
func (e *Exchange) PublishPrice(publisher, marketID ids.ID, price, nonce uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return err
	}
	if m.Paused {
		e.dropOracleUpdate("paused")
		return core.ErrPaused
	}
	if publisher != m.OraclePublisher {
		e.dropOracleUpdate("unauthorized")
		return fmt.Errorf("%w: not the oracle publisher", core.ErrUnauthorized)
	}
	if price == 0 {
		e.dropOracleUpdate("zero_price")
		return fmt.Errorf("%w: zero price", core.ErrInvalidArgument)
	}
	if nonce <= m.LastPriceNonce {
		e.dropOracleUpdate("replay")
		return fmt.Errorf("%w: nonce %d <= %d", core.ErrNonceReplay, nonce, m.LastPriceNonce)
	}
	// ±25% band against the previous accepted price.
	if m.LastPricePerKG > 0 {
		diff, _ := safemath.AbsDiff(price, m.LastPricePerKG)
		if diff > m.LastPricePerKG/4 {
			e.dropOracleUpdate("band")
			return fmt.Errorf("%w: %d -> %d", core.ErrPriceBand, m.LastPricePerKG, price)
		}
	}

	now := e.now()
	work := m.Clone()

	stale := work.LastOracleUpdateTS > 0 && now-work.LastOracleUpdateTS > work.MaxOracleAgeSec
	if stale {
		work.TwapAcc = 0
		work.TwapTimeAcc = 0
		if e.metrics != nil {
			e.metrics.TwapResets.Inc()
		}
		e.log.Warn(fmt.Sprintf("oracle chain stale on market %s; twap reset", marketID))
	}

	// Accumulate the interval the outgoing price was in force.
	if !stale && work.LastOracleUpdateTS > 0 && work.LastPricePerKG > 0 {
		dt := now - work.LastOracleUpdateTS
		if dt < 0 {
			dt = 0
		}
		if uint64(dt) > work.TwapWindowSec {
			dt = int64(work.TwapWindowSec)
		}
		weighted, err := safemath.Mul(work.LastPricePerKG, uint64(dt))
		if err != nil {
			return fmt.Errorf("%w: twap accumulation", core.ErrMathOverflow)
		}
		acc, err := safemath.Add(work.TwapAcc, weighted)
		if err != nil {
			return fmt.Errorf("%w: twap accumulation", core.ErrMathOverflow)
		}
		work.TwapAcc = acc
		work.TwapTimeAcc += uint64(dt)
		// Compress back into the window so old intervals decay away.
		if work.TwapTimeAcc > work.TwapWindowSec {
			scaled, err := safemath.MulDiv(work.TwapAcc, work.TwapWindowSec, work.TwapTimeAcc)
			if err != nil {
				return fmt.Errorf("%w: twap compression", core.ErrMathOverflow)
			}
			work.TwapAcc = scaled
			work.TwapTimeAcc = work.TwapWindowSec
		}
	}

	work.PrevPricePerKG = work.LastPricePerKG
	work.LastPricePerKG = price
	work.LastPriceNonce = nonce
	work.LastOracleUpdateTS = now
	e.commitMarket(work)

	e.emit(core.PricePublished{
		BaseEvent: core.BaseEvent{Type: core.EventTypePricePublished, Timestamp: now},
		Market:    marketID,
		Price:     price,
		Nonce:     nonce,
		TS:        now,
	})
	if e.metrics != nil {
		e.metrics.PricesPublished.Inc()
	}
	return nil
}

func (e *Exchange) dropOracleUpdate(reason string) {
	if e.metrics != nil {
		e.metrics.OracleUpdatesDropped.WithLabelValues(reason).Inc()
	}
}

// referencePrice selects the price margin and settlement evaluate against:
// the windowed TWAP in TWAP mode once any window has accumulated, the last
// accepted price otherwise. Zero means no price has ever been published.
func referencePrice(m *core.Market) uint64 {
	if m.PriceMode == core.PriceModeTWAP && m.TwapTimeAcc > 0 {
		return m.TwapAcc / m.TwapTimeAcc
	}
	return m.LastPricePerKG
}

// riskReferencePrice is referencePrice plus freshness enforcement: marking a
// position against a dead feed would fabricate equity, so mark-to-market
// refuses a price older than the market oracle age. Settlement at expiry uses
// referencePrice directly and tolerates staleness.
func (e *Exchange) riskReferencePrice(m *core.Market, now int64) (uint64, error) {
	price := referencePrice(m)
	if price == 0 {
		return 0, fmt.Errorf("%w: no price published", core.ErrStaleOracle)
	}
	if m.LastOracleUpdateTS > 0 && now-m.LastOracleUpdateTS > m.MaxOracleAgeSec {
		return 0, fmt.Errorf("%w: last update at %d", core.ErrStaleOracle, m.LastOracleUpdateTS)
	}
	return price, nil
}

// ReferencePrice exposes the current settlement reference price.
func (e *Exchange) ReferencePrice(marketID ids.ID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(marketID)
	if err != nil {
		return 0, err
	}
	price := referencePrice(m)
	if price == 0 {
		return 0, fmt.Errorf("%w: no price published", core.ErrStaleOracle)
	}
	return price, nil
}
