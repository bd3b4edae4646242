// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"github.com/btorressz/coffee-futures/pkg/ids"
)

// EventType tags every record appended to the event log.
type EventType string

const (
	EventTypeCftMintInitialized    EventType = "cft_mint_initialized"
	EventTypeMarketCreated         EventType = "market_created"
	EventTypePricePublished        EventType = "price_published"
	EventTypeDealOpened            EventType = "deal_opened"
	EventTypeMarginToppedUp        EventType = "margin_topped_up"
	EventTypeMarginCalled          EventType = "margin_called"
	EventTypeLiquidationFlagged    EventType = "liquidation_flagged"
	EventTypeSettledCash           EventType = "settled_cash"
	EventTypeSettledPhysical       EventType = "settled_physical"
	EventTypeDealCanceled          EventType = "deal_canceled"
	EventTypeRoleRotationProposed  EventType = "role_rotation_proposed"
	EventTypeRoleRotationActivated EventType = "role_rotation_activated"
)

// Event is implemented by every typed event record.
type Event interface {
	Kind() EventType
}

// BaseEvent carries the fields common to all events. The record ID and
// sequence number are assigned by the event log at append time.
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
}

// Kind returns the event type tag.
func (b BaseEvent) Kind() EventType { return b.Type }

// CftMintInitialized records creation of a delivery-token mint.
type CftMintInitialized struct {
	BaseEvent
	Mint      ids.ID `json:"mint"`
	MintAuth  ids.ID `json:"mint_auth"`
	Decimals  uint8  `json:"decimals"`
	Authority ids.ID `json:"authority"`
}

// MarketCreated records a new market.
type MarketCreated struct {
	BaseEvent
	Market    ids.ID `json:"market"`
	Authority ids.ID `json:"authority"`
	CftMint   ids.ID `json:"cft_mint"`
	QuoteMint ids.ID `json:"quote_mint"`
}

// PricePublished records an accepted oracle update.
type PricePublished struct {
	BaseEvent
	Market ids.ID `json:"market"`
	Price  uint64 `json:"price"`
	Nonce  uint64 `json:"nonce"`
	TS     int64  `json:"ts"`
}

// DealOpened records a funded bilateral contract.
type DealOpened struct {
	BaseEvent
	Deal              ids.ID `json:"deal"`
	Market            ids.ID `json:"market"`
	Farmer            ids.ID `json:"farmer"`
	Buyer             ids.ID `json:"buyer"`
	QuantityKG        uint64 `json:"quantity_kg"`
	AgreedPricePerKG  uint64 `json:"agreed_price_per_kg"`
	InitialMarginEach uint64 `json:"initial_margin_each"`
	PhysicalDelivery  bool   `json:"physical_delivery"`
}

// MarginToppedUp records additional collateral posted by one side.
type MarginToppedUp struct {
	BaseEvent
	Deal   ids.ID `json:"deal"`
	Side   string `json:"side"`
	Amount uint64 `json:"amount"`
}

// MarginCalled records the start of a margin-call grace window.
type MarginCalled struct {
	BaseEvent
	Deal     ids.ID `json:"deal"`
	RefPrice uint64 `json:"ref_price"`
	TS       int64  `json:"ts"`
}

// LiquidationFlagged records a deal crossing into liquidation.
type LiquidationFlagged struct {
	BaseEvent
	Deal ids.ID `json:"deal"`
	TS   int64  `json:"ts"`
}

// SettlementFees breaks out the slices debited at cash settlement.
type SettlementFees struct {
	Protocol  uint64 `json:"protocol"`
	Farmer    uint64 `json:"farmer"`
	Buyer     uint64 `json:"buyer"`
	Insurance uint64 `json:"insurance"`
}

// Total sums all fee slices.
func (f SettlementFees) Total() uint64 {
	return f.Protocol + f.Farmer + f.Buyer + f.Insurance
}

// SettledCash records a completed cash settlement.
type SettledCash struct {
	BaseEvent
	Deal     ids.ID         `json:"deal"`
	RefPrice uint64         `json:"ref_price"`
	PnlAbs   uint64         `json:"pnl_abs"`
	PnlSign  int            `json:"pnl_sign"`
	Fees     SettlementFees `json:"fees"`
}

// SettledPhysical records one delivery tranche of a physical deal.
type SettledPhysical struct {
	BaseEvent
	Deal        ids.ID `json:"deal"`
	DeliveredKG uint64 `json:"delivered_kg"`
	Cumulative  uint64 `json:"cumulative"`
	Completed   bool   `json:"completed"`
}

// DealCanceled records a cancellation with refunds.
type DealCanceled struct {
	BaseEvent
	Deal           ids.ID `json:"deal"`
	FarmerRefunded uint64 `json:"farmer_refunded"`
	BuyerRefunded  uint64 `json:"buyer_refunded"`
}

// RoleRotationProposed records a pending oracle publisher swap.
type RoleRotationProposed struct {
	BaseEvent
	Market      ids.ID `json:"market"`
	NewOracle   ids.ID `json:"new_oracle"`
	EffectiveTS int64  `json:"effective_ts"`
}

// RoleRotationActivated records the oracle publisher swap taking effect.
type RoleRotationActivated struct {
	BaseEvent
	Market    ids.ID `json:"market"`
	NewOracle ids.ID `json:"new_oracle"`
}
