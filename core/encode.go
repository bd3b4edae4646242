// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btorressz/coffee-futures/pkg/ids"
)

// Persisted records use a fixed field order with little-endian integers,
// 32-byte identifiers and 1-byte booleans. Variable-length fields are written
// length-prefixed and bounded by MaxAssets.

var errShortBuffer = errors.New("core: short buffer")

type writer struct {
	buf []byte
}

func (w *writer) id(v ids.ID)    { w.buf = append(w.buf, v[:]...) }
func (w *writer) b32(v [32]byte) { w.buf = append(w.buf, v[:]...) }
func (w *writer) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16)   { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u64(v uint64)   { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)    { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }

func (w *writer) flag(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = errShortBuffer
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) id() ids.ID {
	var v ids.ID
	copy(v[:], r.take(32))
	return v
}

func (r *reader) b32() [32]byte {
	var v [32]byte
	copy(v[:], r.take(32))
	return v
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) flag() bool { return r.u8() == 1 }

// MarshalBinary encodes the market record.
func (m *Market) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, 512)}
	w.id(m.ID)
	w.u8(m.Bump)
	w.id(m.Authority)
	w.id(m.Verifier)
	w.id(m.OraclePublisher)
	w.id(m.CftMint)
	w.u8(m.CftDecimals)
	w.id(m.QuoteMint)
	w.id(m.FeeTreasury)
	w.id(m.InsuranceTreasury)
	w.i64(m.SettlementTS)
	w.u64(m.ContractSizeKG)
	w.u16(m.InitialMarginBps)
	w.u16(m.MaintenanceMarginBps)
	w.u16(m.FeeBps)
	w.u16(m.FarmerFeeBps)
	w.u16(m.BuyerFeeBps)
	w.u16(m.InsuranceBps)
	w.u64(m.MinTransferAmount)
	w.u64(m.MaxNotionalPerDeal)
	w.u64(m.MaxQtyPerDeal)
	w.u64(m.LastPricePerKG)
	w.u64(m.PrevPricePerKG)
	w.i64(m.LastOracleUpdateTS)
	w.u64(m.LastPriceNonce)
	w.i64(m.MaxOracleAgeSec)
	w.u64(m.TwapAcc)
	w.u64(m.TwapTimeAcc)
	w.u64(m.TwapWindowSec)
	w.u8(uint8(m.PriceMode))
	w.flag(m.Paused)
	w.id(m.PendingOracle)
	w.i64(m.PendingOracleEffectiveTS)
	w.u8(m.ProgramVersion)
	return w.buf, nil
}

// UnmarshalBinary decodes a market record.
func (m *Market) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	m.ID = r.id()
	m.Bump = r.u8()
	m.Authority = r.id()
	m.Verifier = r.id()
	m.OraclePublisher = r.id()
	m.CftMint = r.id()
	m.CftDecimals = r.u8()
	m.QuoteMint = r.id()
	m.FeeTreasury = r.id()
	m.InsuranceTreasury = r.id()
	m.SettlementTS = r.i64()
	m.ContractSizeKG = r.u64()
	m.InitialMarginBps = r.u16()
	m.MaintenanceMarginBps = r.u16()
	m.FeeBps = r.u16()
	m.FarmerFeeBps = r.u16()
	m.BuyerFeeBps = r.u16()
	m.InsuranceBps = r.u16()
	m.MinTransferAmount = r.u64()
	m.MaxNotionalPerDeal = r.u64()
	m.MaxQtyPerDeal = r.u64()
	m.LastPricePerKG = r.u64()
	m.PrevPricePerKG = r.u64()
	m.LastOracleUpdateTS = r.i64()
	m.LastPriceNonce = r.u64()
	m.MaxOracleAgeSec = r.i64()
	m.TwapAcc = r.u64()
	m.TwapTimeAcc = r.u64()
	m.TwapWindowSec = r.u64()
	m.PriceMode = PriceMode(r.u8())
	m.Paused = r.flag()
	m.PendingOracle = r.id()
	m.PendingOracleEffectiveTS = r.i64()
	m.ProgramVersion = r.u8()
	return r.err
}

// MarshalBinary encodes the deal record.
func (d *Deal) MarshalBinary() ([]byte, error) {
	if len(d.Assets) > MaxAssets || len(d.Assets) != len(d.AssetQty) {
		return nil, fmt.Errorf("core: invalid asset list (%d assets, %d quantities)", len(d.Assets), len(d.AssetQty))
	}
	w := &writer{buf: make([]byte, 0, 768)}
	w.id(d.ID)
	w.u8(d.Bump)
	w.id(d.Market)
	w.id(d.Farmer)
	w.id(d.Buyer)
	w.id(d.Referrer)
	w.u16(d.FeeSplitBps)
	w.id(d.FarmerReceive)
	w.id(d.BuyerReceive)
	w.id(d.BuyerCftAccount)
	w.u64(d.AgreedPricePerKG)
	w.u64(d.QuantityKG)
	w.flag(d.PhysicalDelivery)
	w.i64(d.DeadlineTS)
	w.u64(d.InitialMarginEach)
	w.u64(d.FarmerDeposited)
	w.u64(d.BuyerDeposited)
	w.u8(uint8(len(d.Assets)))
	for _, asset := range d.Assets {
		w.id(asset)
	}
	for _, qty := range d.AssetQty {
		w.u64(qty)
	}
	w.flag(d.HasMerkleRoot)
	w.b32(d.MerkleRoot)
	w.u64(d.DeliveredKGTotal)
	w.i64(d.MarginCallTS)
	w.i64(d.MarginCallGraceSec)
	w.flag(d.Settled)
	w.flag(d.Settling)
	w.flag(d.Liquidated)
	w.id(d.VaultAuth)
	w.u8(d.VaultAuthBump)
	w.id(d.FarmerVault)
	w.id(d.BuyerVault)
	w.i64(d.CreatedAt)
	return w.buf, nil
}

// UnmarshalBinary decodes a deal record.
func (d *Deal) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	d.ID = r.id()
	d.Bump = r.u8()
	d.Market = r.id()
	d.Farmer = r.id()
	d.Buyer = r.id()
	d.Referrer = r.id()
	d.FeeSplitBps = r.u16()
	d.FarmerReceive = r.id()
	d.BuyerReceive = r.id()
	d.BuyerCftAccount = r.id()
	d.AgreedPricePerKG = r.u64()
	d.QuantityKG = r.u64()
	d.PhysicalDelivery = r.flag()
	d.DeadlineTS = r.i64()
	d.InitialMarginEach = r.u64()
	d.FarmerDeposited = r.u64()
	d.BuyerDeposited = r.u64()
	count := int(r.u8())
	if count > MaxAssets {
		return fmt.Errorf("core: asset count %d exceeds bound %d", count, MaxAssets)
	}
	if count > 0 {
		d.Assets = make([]ids.ID, count)
		d.AssetQty = make([]uint64, count)
		for i := 0; i < count; i++ {
			d.Assets[i] = r.id()
		}
		for i := 0; i < count; i++ {
			d.AssetQty[i] = r.u64()
		}
	} else {
		d.Assets = nil
		d.AssetQty = nil
	}
	d.HasMerkleRoot = r.flag()
	d.MerkleRoot = r.b32()
	d.DeliveredKGTotal = r.u64()
	d.MarginCallTS = r.i64()
	d.MarginCallGraceSec = r.i64()
	d.Settled = r.flag()
	d.Settling = r.flag()
	d.Liquidated = r.flag()
	d.VaultAuth = r.id()
	d.VaultAuthBump = r.u8()
	d.FarmerVault = r.id()
	d.BuyerVault = r.id()
	d.CreatedAt = r.i64()
	return r.err
}
