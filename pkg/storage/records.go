// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
)

// Key prefixes for persisted records.
var (
	prefixMarket = []byte("m/")
	prefixDeal   = []byte("d/")
)

func marketKey(id ids.ID) []byte {
	return append(append([]byte{}, prefixMarket...), id[:]...)
}

func dealKey(id ids.ID) []byte {
	return append(append([]byte{}, prefixDeal...), id[:]...)
}

// PutMarket persists a market record under its fixed binary layout.
func (s *Storage) PutMarket(m *core.Market) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return s.Put(marketKey(m.ID), data)
}

// PutDeal persists a deal record.
func (s *Storage) PutDeal(d *core.Deal) error {
	data, err := d.MarshalBinary()
	if err != nil {
		return err
	}
	return s.Put(dealKey(d.ID), data)
}

// DeleteDeal removes a closed deal record.
func (s *Storage) DeleteDeal(id ids.ID) error {
	return s.Delete(dealKey(id))
}

// LoadMarkets returns every persisted market.
func (s *Storage) LoadMarkets() ([]*core.Market, error) {
	iter := s.NewIteratorWithPrefix(prefixMarket)
	defer iter.Release()
	var markets []*core.Market
	for iter.Next() {
		m := &core.Market{}
		if err := m.UnmarshalBinary(iter.Value()); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, iter.Error()
}

// LoadDeals returns every persisted deal.
func (s *Storage) LoadDeals() ([]*core.Deal, error) {
	iter := s.NewIteratorWithPrefix(prefixDeal)
	defer iter.Release()
	var deals []*core.Deal
	for iter.Next() {
		d := &core.Deal{}
		if err := d.UnmarshalBinary(iter.Value()); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, iter.Error()
}
