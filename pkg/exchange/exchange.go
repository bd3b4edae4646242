// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/eventlog"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/log"
	"github.com/btorressz/coffee-futures/pkg/metric"
	"github.com/btorressz/coffee-futures/pkg/storage"
	"github.com/btorressz/coffee-futures/pkg/token"
)

// Exchange is the settlement engine: it owns every Market and Deal record and
// drives the external token ledger. One mutex serializes entrypoints, which
// gives each invocation the single-threaded transactional semantics the state
// machine assumes. Entrypoints mutate clones and commit only on success, so
// any error rolls the in-core state back completely.
type Exchange struct {
	mu sync.Mutex

	log     log.Logger
	ledger  token.Ledger
	store   *storage.Storage
	events  *eventlog.Log
	metrics *metric.Metrics

	programID ids.ID
	markets   map[ids.ID]*core.Market
	deals     map[ids.ID]*core.Deal

	nowFn func() int64
}

// Options configures optional collaborators.
type Options struct {
	// Store mirrors committed records; nil disables persistence.
	Store *storage.Storage
	// Metrics receives engine counters; nil disables them.
	Metrics *metric.Metrics
}

// New creates an engine bound to a token ledger.
func New(programID ids.ID, ledger token.Ledger, logger log.Logger, opts Options) (*Exchange, error) {
	if ledger == nil {
		return nil, fmt.Errorf("exchange: nil token ledger")
	}
	if logger == nil {
		logger = log.NoOp()
	}
	e := &Exchange{
		log:       logger,
		ledger:    ledger,
		store:     opts.Store,
		events:    eventlog.New(),
		metrics:   opts.Metrics,
		programID: programID,
		markets:   make(map[ids.ID]*core.Market),
		deals:     make(map[ids.ID]*core.Deal),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
	if e.store != nil {
		markets, err := e.store.LoadMarkets()
		if err != nil {
			return nil, fmt.Errorf("exchange: loading markets: %w", err)
		}
		for _, m := range markets {
			e.markets[m.ID] = m
		}
		deals, err := e.store.LoadDeals()
		if err != nil {
			return nil, fmt.Errorf("exchange: loading deals: %w", err)
		}
		for _, d := range deals {
			e.deals[d.ID] = d
		}
	}
	return e, nil
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Exchange) SetNowFunc(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Events exposes the append-only event log.
func (e *Exchange) Events() *eventlog.Log {
	return e.events
}

// ProgramID returns the identifier all addresses are derived under.
func (e *Exchange) ProgramID() ids.ID {
	return e.programID
}

func (e *Exchange) now() int64 {
	return e.nowFn()
}

// market returns the live record; callers must hold e.mu.
func (e *Exchange) market(id ids.ID) (*core.Market, error) {
	m, ok := e.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: market %s", core.ErrNotFound, id)
	}
	return m, nil
}

// deal returns the live record; callers must hold e.mu.
func (e *Exchange) deal(id ids.ID) (*core.Deal, error) {
	d, ok := e.deals[id]
	if !ok {
		return nil, fmt.Errorf("%w: deal %s", core.ErrNotFound, id)
	}
	return d, nil
}

// commitMarket swaps the working copy in and mirrors it to storage.
func (e *Exchange) commitMarket(m *core.Market) {
	e.markets[m.ID] = m
	if e.store == nil {
		return
	}
	if err := e.store.PutMarket(m); err != nil {
		e.log.Error(fmt.Sprintf("persisting market %s: %v", m.ID, err))
	}
}

// commitDeal swaps the working copy in and mirrors it to storage.
func (e *Exchange) commitDeal(d *core.Deal) {
	e.deals[d.ID] = d
	if e.store == nil {
		return
	}
	if err := e.store.PutDeal(d); err != nil {
		e.log.Error(fmt.Sprintf("persisting deal %s: %v", d.ID, err))
	}
}

func (e *Exchange) emit(event core.Event) {
	e.events.Append(event)
}

// transferAboveDust executes a vault outflow unless the amount falls below the
// market dust threshold. Returns the amount actually moved.
func (e *Exchange) transferAboveDust(m *core.Market, from, to ids.ID, amount uint64, signer ids.ID) (uint64, error) {
	if amount == 0 {
		return 0, nil
	}
	if amount < m.MinTransferAmount {
		if e.metrics != nil {
			e.metrics.DustTransfersSkipped.Inc()
		}
		return 0, nil
	}
	if err := e.ledger.Transfer(from, to, amount, signer); err != nil {
		return 0, err
	}
	return amount, nil
}

// GetMarket returns a copy of a market record.
func (e *Exchange) GetMarket(id ids.ID) (*core.Market, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markets[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// GetDeal returns a copy of a deal record.
func (e *Exchange) GetDeal(id ids.ID) (*core.Deal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.deals[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// ListMarkets returns copies of all market records.
func (e *Exchange) ListMarkets() []*core.Market {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*core.Market, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, m.Clone())
	}
	return out
}

// ListDeals returns copies of all deal records.
func (e *Exchange) ListDeals() []*core.Deal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*core.Deal, 0, len(e.deals))
	for _, d := range e.deals {
		out = append(out, d.Clone())
	}
	return out
}

// VaultBalances reports the current margin vault balances for a deal.
func (e *Exchange) VaultBalances(dealID ids.ID) (farmer, buyer uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.deal(dealID)
	if err != nil {
		return 0, 0, err
	}
	return e.ledger.BalanceOf(d.FarmerVault), e.ledger.BalanceOf(d.BuyerVault), nil
}

// WithdrawInsurance is the insurance-treasury drawdown path. Inflows are
// live; every withdrawal attempt is refused.
func (e *Exchange) WithdrawInsurance(caller, marketID ids.ID, amount uint64) error {
	return fmt.Errorf("%w: insurance treasury drawdown is disabled", core.ErrUnauthorized)
}
