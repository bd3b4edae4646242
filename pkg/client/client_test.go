// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/api"
	"github.com/btorressz/coffee-futures/pkg/exchange"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/log"
	"github.com/btorressz/coffee-futures/pkg/token"
)

// newTestDaemon stands up an engine with one market behind the HTTP API.
func newTestDaemon(t *testing.T) (*Client, *core.Market, ids.ID) {
	req := require.New(t)

	ledger := token.NewMemLedger()
	authority := ids.GenerateTestID()
	oracle := ids.GenerateTestID()
	quoteMint := ids.GenerateTestID()
	cftMint := ids.GenerateTestID()
	mintAuth := ids.GenerateTestID()
	feeTreasury := ids.GenerateTestID()
	insurance := ids.GenerateTestID()

	req.NoError(ledger.CreateMint(quoteMint, 6, mintAuth))
	req.NoError(ledger.CreateAccount(feeTreasury, quoteMint, authority))
	req.NoError(ledger.CreateAccount(insurance, quoteMint, authority))

	ex, err := exchange.New(ids.GenerateTestID(), ledger, log.NoOp(), exchange.Options{})
	req.NoError(err)
	req.NoError(ex.InitCftMint(authority, cftMint, 3))

	market, err := ex.CreateMarket(exchange.MarketParams{
		Authority:            authority,
		Verifier:             ids.GenerateTestID(),
		OraclePublisher:      oracle,
		CftMint:              cftMint,
		CftDecimals:          3,
		QuoteMint:            quoteMint,
		FeeTreasury:          feeTreasury,
		InsuranceTreasury:    insurance,
		SettlementTS:         2_000_000_000,
		InitialMarginBps:     1000,
		MaintenanceMarginBps: 500,
		MinTransferAmount:    1,
		MaxOracleAgeSec:      900,
		TwapWindowSec:        3600,
	})
	req.NoError(err)

	srv := httptest.NewServer(api.NewServer(ex, ledger, nil, log.NoOp()).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL), market, oracle
}

func TestClientRoundTrip(t *testing.T) {
	req := require.New(t)

	c, market, oracle := newTestDaemon(t)
	ctx := context.Background()

	req.NoError(c.PublishPrice(ctx, oracle, market.ID, 1500, 1))

	got, err := c.GetMarket(ctx, market.ID)
	req.NoError(err)
	req.Equal(uint64(1500), got.LastPricePerKG)

	// Replay surfaces the stable code through the typed error.
	err = c.PublishPrice(ctx, oracle, market.ID, 1500, 1)
	var apiErr *APIError
	req.True(errors.As(err, &apiErr))
	req.Equal("NonceReplay", apiErr.Code)

	_, err = c.GetDeal(ctx, ids.GenerateTestID())
	req.True(errors.As(err, &apiErr))
	req.Equal("NotFound", apiErr.Code)
}

func TestSubscribeEventsDeliversTypedRecords(t *testing.T) {
	req := require.New(t)

	c, market, oracle := newTestDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := c.SubscribeEvents(ctx)
	req.NoError(err)

	// The server-side subscription attaches a moment after the dial returns;
	// keep publishing until a record comes through.
	var event core.Event
	nonce := uint64(1)
	for event == nil {
		req.NoError(c.PublishPrice(ctx, oracle, market.ID, 1500, nonce))
		nonce++
		select {
		case rec, ok := <-events:
			req.True(ok)
			event = rec.Event
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			t.Fatal("no event received before timeout")
		}
	}

	// The payload arrives as the concrete event type with all fields intact.
	published, ok := event.(*core.PricePublished)
	req.True(ok, "expected *core.PricePublished, got %T", event)
	req.Equal(core.EventTypePricePublished, published.Kind())
	req.Equal(market.ID, published.Market)
	req.Equal(uint64(1500), published.Price)
	req.NotZero(published.Nonce)
	req.NotZero(published.TS)
}

func TestDecodeEventKeepsEnvelopeForUnknownTypes(t *testing.T) {
	req := require.New(t)

	event, err := decodeEvent([]byte(`{"type":"harvest_report","timestamp":42}`))
	req.NoError(err)
	base, ok := event.(core.BaseEvent)
	req.True(ok)
	req.Equal(core.EventType("harvest_report"), base.Type)
	req.Equal(int64(42), base.Timestamp)

	_, err = decodeEvent([]byte(`{`))
	req.Error(err)
}
