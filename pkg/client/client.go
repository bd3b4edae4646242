// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/btorressz/coffee-futures/core"
	"github.com/btorressz/coffee-futures/pkg/eventlog"
	"github.com/btorressz/coffee-futures/pkg/ids"
)

// Client talks to a coffeefutd HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError carries the stable engine error code surfaced by the daemon.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (%s)", e.Message, e.Code)
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			return fmt.Errorf("api: %s", resp.Status)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PublishPrice submits an oracle update.
func (c *Client) PublishPrice(ctx context.Context, publisher, market ids.ID, price, nonce uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/markets/%s/price", market), map[string]any{
		"publisher": publisher,
		"price":     price,
		"nonce":     nonce,
	}, nil)
}

// GetMarket fetches a market record.
func (c *Client) GetMarket(ctx context.Context, market ids.ID) (*core.Market, error) {
	var out core.Market
	if err := c.do(ctx, http.MethodGet, "/v1/markets/"+market.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDeal fetches a deal record.
func (c *Client) GetDeal(ctx context.Context, deal ids.ID) (*core.Deal, error) {
	var out core.Deal
	if err := c.do(ctx, http.MethodGet, "/v1/deals/"+deal.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkToMarket pushes a permissionless mark on a deal.
func (c *Client) MarkToMarket(ctx context.Context, deal ids.ID) (*core.Deal, error) {
	var out core.Deal
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/deals/%s/mark", deal), struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SettleCash triggers cash settlement on a deal.
func (c *Client) SettleCash(ctx context.Context, deal ids.ID) (*core.Deal, error) {
	var out core.Deal
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/deals/%s/settle-cash", deal), struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubscribeEvents opens the websocket event feed and delivers records until
// the context is done or the connection drops. Payloads decode into the
// concrete event types, so consumers can type-switch on Record.Event.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan eventlog.Record, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan eventlog.Record, 64)
	go func() {
		defer close(out)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			var raw struct {
				ID    string          `json:"id"`
				Seq   uint64          `json:"seq"`
				Event json.RawMessage `json:"event"`
			}
			if err := conn.ReadJSON(&raw); err != nil {
				return
			}
			event, err := decodeEvent(raw.Event)
			if err != nil {
				continue
			}
			select {
			case out <- eventlog.Record{ID: raw.ID, Seq: raw.Seq, Event: event}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// decodeEvent rebuilds the concrete event struct from a feed payload using
// its type tag.
func decodeEvent(raw json.RawMessage) (core.Event, error) {
	var head core.BaseEvent
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	var event core.Event
	switch head.Type {
	case core.EventTypeCftMintInitialized:
		event = &core.CftMintInitialized{}
	case core.EventTypeMarketCreated:
		event = &core.MarketCreated{}
	case core.EventTypePricePublished:
		event = &core.PricePublished{}
	case core.EventTypeDealOpened:
		event = &core.DealOpened{}
	case core.EventTypeMarginToppedUp:
		event = &core.MarginToppedUp{}
	case core.EventTypeMarginCalled:
		event = &core.MarginCalled{}
	case core.EventTypeLiquidationFlagged:
		event = &core.LiquidationFlagged{}
	case core.EventTypeSettledCash:
		event = &core.SettledCash{}
	case core.EventTypeSettledPhysical:
		event = &core.SettledPhysical{}
	case core.EventTypeDealCanceled:
		event = &core.DealCanceled{}
	case core.EventTypeRoleRotationProposed:
		event = &core.RoleRotationProposed{}
	case core.EventTypeRoleRotationActivated:
		event = &core.RoleRotationActivated{}
	default:
		// Unknown tag from a newer daemon: keep the envelope.
		return head, nil
	}
	if err := json.Unmarshal(raw, event); err != nil {
		return nil, err
	}
	return event, nil
}
