// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btorressz/coffee-futures/pkg/log"
	"github.com/btorressz/coffee-futures/pkg/storage"
)

func TestEngineReloadsStateFromStorage(t *testing.T) {
	req := require.New(t)

	store, err := storage.NewStorage("memory", "")
	req.NoError(err)
	defer store.Close()

	v := newEnv(t)
	v.ex.store = store

	deal := v.openDeal()
	req.NoError(v.publish(1500, 1))
	req.NoError(v.publish(1550, 2))

	// A second engine over the same store sees the committed records.
	reloaded, err := New(v.program, v.ledger, log.NoOp(), Options{Store: store})
	req.NoError(err)

	m, ok := reloaded.GetMarket(v.market.ID)
	req.True(ok)
	req.Equal(uint64(1550), m.LastPricePerKG)
	req.Equal(uint64(2), m.LastPriceNonce)

	d, ok := reloaded.GetDeal(deal.ID)
	req.True(ok)
	req.Equal(deal.InitialMarginEach, d.InitialMarginEach)
	req.Equal(deal.VaultAuth, d.VaultAuth)
}
