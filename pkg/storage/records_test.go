// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"testing"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/stretchr/testify/require"
)

func TestMarketAndDealPersistence(t *testing.T) {
	require := require.New(t)

	store, err := NewStorage("memory", "")
	require.NoError(err)
	defer store.Close()

	market := &core.Market{
		ID:             ids.GenerateTestID(),
		Authority:      ids.GenerateTestID(),
		LastPriceNonce: 7,
		TwapWindowSec:  3600,
	}
	require.NoError(store.PutMarket(market))

	dealA := &core.Deal{ID: ids.GenerateTestID(), Market: market.ID, QuantityKG: 10}
	dealB := &core.Deal{ID: ids.GenerateTestID(), Market: market.ID, QuantityKG: 5}
	require.NoError(store.PutDeal(dealA))
	require.NoError(store.PutDeal(dealB))

	markets, err := store.LoadMarkets()
	require.NoError(err)
	require.Len(markets, 1)
	require.Equal(*market, *markets[0])

	deals, err := store.LoadDeals()
	require.NoError(err)
	require.Len(deals, 2)

	require.NoError(store.DeleteDeal(dealA.ID))
	deals, err = store.LoadDeals()
	require.NoError(err)
	require.Len(deals, 1)
	require.Equal(dealB.ID, deals[0].ID)
}
