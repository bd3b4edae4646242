// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package report

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/btorressz/coffee-futures/core"
)

// Amount renders a smallest-unit integer as a display decimal under the quote
// token's precision, e.g. 1500 with 6 decimals -> 0.0015.
func Amount(units uint64, decimals uint8) decimal.Decimal {
	if units > math.MaxInt64 {
		// Past int64 range build the value from the big integer path.
		return decimal.NewFromUint64(units).Shift(-int32(decimals))
	}
	return decimal.New(int64(units), -int32(decimals))
}

// SignedAmount renders a magnitude/sign pair.
func SignedAmount(abs uint64, sign int, decimals uint8) decimal.Decimal {
	value := Amount(abs, decimals)
	if sign < 0 {
		return value.Neg()
	}
	return value
}

// DealStatement is the human-facing view of a deal's economics.
type DealStatement struct {
	Deal             string          `json:"deal"`
	AgreedPrice      decimal.Decimal `json:"agreed_price_per_kg"`
	ReferencePrice   decimal.Decimal `json:"reference_price_per_kg"`
	QuantityKG       uint64          `json:"quantity_kg"`
	Notional         decimal.Decimal `json:"notional"`
	UnrealizedPnl    decimal.Decimal `json:"unrealized_pnl"`
	FarmerMargin     decimal.Decimal `json:"farmer_margin"`
	BuyerMargin      decimal.Decimal `json:"buyer_margin"`
	DeliveredKG      uint64          `json:"delivered_kg"`
	PhysicalDelivery bool            `json:"physical_delivery"`
	Settled          bool            `json:"settled"`
	Liquidated       bool            `json:"liquidated"`
	MarginCalled     bool            `json:"margin_called"`
}

// BuildStatement assembles a statement from a deal, the current reference
// price and both vault balances. quoteDecimals is the quote mint precision.
func BuildStatement(d *core.Deal, refPrice, farmerVault, buyerVault uint64, quoteDecimals uint8) DealStatement {
	stmt := DealStatement{
		Deal:             d.ID.String(),
		AgreedPrice:      Amount(d.AgreedPricePerKG, quoteDecimals),
		ReferencePrice:   Amount(refPrice, quoteDecimals),
		QuantityKG:       d.QuantityKG,
		FarmerMargin:     Amount(farmerVault, quoteDecimals),
		BuyerMargin:      Amount(buyerVault, quoteDecimals),
		DeliveredKG:      d.DeliveredKGTotal,
		PhysicalDelivery: d.PhysicalDelivery,
		Settled:          d.Settled,
		Liquidated:       d.Liquidated,
		MarginCalled:     d.MarginCallTS != 0,
	}
	qty := decimal.NewFromUint64(d.QuantityKG)
	stmt.Notional = stmt.ReferencePrice.Mul(qty)
	stmt.UnrealizedPnl = stmt.ReferencePrice.Sub(stmt.AgreedPrice).Mul(qty)
	return stmt
}
