// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"github.com/btorressz/coffee-futures/pkg/ids"
)

// PriceMode selects the reference price used by margin and settlement.
type PriceMode uint8

const (
	// PriceModeLast uses the most recent accepted oracle price.
	PriceModeLast PriceMode = iota
	// PriceModeTWAP uses the time-weighted average over the market window,
	// falling back to the last price while no window has accumulated.
	PriceModeTWAP
)

// Valid reports whether the price mode is a supported value.
func (m PriceMode) Valid() bool {
	return m == PriceModeLast || m == PriceModeTWAP
}

func (m PriceMode) String() string {
	switch m {
	case PriceModeLast:
		return "last"
	case PriceModeTWAP:
		return "twap"
	default:
		return "unknown"
	}
}

const (
	// MaxAssets bounds the delivery asset list on a deal.
	MaxAssets = 8
	// MinRotationDelaySec is the shortest timelock accepted when proposing a
	// new oracle publisher.
	MinRotationDelaySec int64 = 3600
	// DeadlineToleranceSec bounds how far a deal deadline may extend past the
	// market settlement timestamp.
	DeadlineToleranceSec int64 = 86_400
	// ProgramVersion is stamped on every market record.
	ProgramVersion uint8 = 1
)

// Market is a harvest venue: one delivery-token mint settled against one
// quote mint under a single authority. All monetary fields are in the
// smallest unit of the quote token; prices are per kilogram.
type Market struct {
	ID   ids.ID
	Bump byte

	// Role bindings.
	Authority       ids.ID
	Verifier        ids.ID
	OraclePublisher ids.ID

	// Token bindings.
	CftMint           ids.ID
	CftDecimals       uint8
	QuoteMint         ids.ID
	FeeTreasury       ids.ID
	InsuranceTreasury ids.ID

	// Economics.
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

	// Oracle state.
	LastPricePerKG     uint64
	PrevPricePerKG     uint64
	LastOracleUpdateTS int64
	LastPriceNonce     uint64
	MaxOracleAgeSec    int64
	TwapAcc            uint64
	TwapTimeAcc        uint64
	TwapWindowSec      uint64
	PriceMode          PriceMode

	// Governance.
	Paused                   bool
	PendingOracle            ids.ID
	PendingOracleEffectiveTS int64
	ProgramVersion           uint8
}

// Clone returns a deep copy so entrypoints can mutate a working copy and
// commit it only on success.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// FeeBpsTotal sums the fee slices charged at cash settlement.
func (m *Market) FeeBpsTotal() uint32 {
	return uint32(m.FeeBps) + uint32(m.FarmerFeeBps) + uint32(m.BuyerFeeBps) + uint32(m.InsuranceBps)
}

// Deal is a bilateral contract between a farmer (short) and a buyer (long)
// under one market.
type Deal struct {
	ID     ids.ID
	Bump   byte
	Market ids.ID

	// Parties. Referrer is optional; zero means unset.
	Farmer      ids.ID
	Buyer       ids.ID
	Referrer    ids.ID
	FeeSplitBps uint16

	// Receive accounts for refunds and settlement payouts, plus the buyer's
	// delivery-token account for physical deals.
	FarmerReceive   ids.ID
	BuyerReceive    ids.ID
	BuyerCftAccount ids.ID

	// Terms.
	AgreedPricePerKG uint64
	QuantityKG       uint64
	PhysicalDelivery bool
	DeadlineTS       int64

	// Margin bookkeeping.
	InitialMarginEach uint64
	FarmerDeposited   uint64
	BuyerDeposited    uint64

	// Delivery accounting.
	Assets           []ids.ID
	AssetQty         []uint64
	MerkleRoot       [32]byte
	HasMerkleRoot    bool
	DeliveredKGTotal uint64

	// Risk state.
	MarginCallTS       int64
	MarginCallGraceSec int64

	// Flags.
	Settled    bool
	Settling   bool
	Liquidated bool

	// Vault plumbing. The deal owns VaultAuth; VaultAuth owns both vaults.
	VaultAuth     ids.ID
	VaultAuthBump byte
	FarmerVault   ids.ID
	BuyerVault    ids.ID

	CreatedAt int64
}

// Clone returns a deep copy of the deal.
func (d *Deal) Clone() *Deal {
	if d == nil {
		return nil
	}
	clone := *d
	if len(d.Assets) > 0 {
		clone.Assets = make([]ids.ID, len(d.Assets))
		copy(clone.Assets, d.Assets)
	}
	if len(d.AssetQty) > 0 {
		clone.AssetQty = make([]uint64, len(d.AssetQty))
		copy(clone.AssetQty, d.AssetQty)
	}
	return &clone
}

// BothDeposited reports whether each side has posted at least the initial
// margin requirement.
func (d *Deal) BothDeposited() bool {
	return d.FarmerDeposited >= d.InitialMarginEach && d.BuyerDeposited >= d.InitialMarginEach
}

// Side names one of the two deal parties.
type Side uint8

const (
	SideFarmer Side = iota
	SideBuyer
)

func (s Side) String() string {
	if s == SideFarmer {
		return "farmer"
	}
	return "buyer"
}
