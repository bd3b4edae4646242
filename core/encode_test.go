// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"encoding/binary"
	"testing"

	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/stretchr/testify/require"
)

func TestMarketCodecRoundTrip(t *testing.T) {
	require := require.New(t)

	market := &Market{
		ID:                       ids.GenerateTestID(),
		Bump:                     255,
		Authority:                ids.GenerateTestID(),
		Verifier:                 ids.GenerateTestID(),
		OraclePublisher:          ids.GenerateTestID(),
		CftMint:                  ids.GenerateTestID(),
		CftDecimals:              3,
		QuoteMint:                ids.GenerateTestID(),
		FeeTreasury:              ids.GenerateTestID(),
		InsuranceTreasury:        ids.GenerateTestID(),
		SettlementTS:             1_760_000_000,
		ContractSizeKG:           60,
		InitialMarginBps:         1000,
		MaintenanceMarginBps:     500,
		FeeBps:                   50,
		FarmerFeeBps:             25,
		BuyerFeeBps:              25,
		InsuranceBps:             100,
		MinTransferAmount:        10,
		MaxNotionalPerDeal:       1_000_000_000,
		MaxQtyPerDeal:            100_000,
		LastPricePerKG:           1800,
		PrevPricePerKG:           1500,
		LastOracleUpdateTS:       1_750_000_000,
		LastPriceNonce:           42,
		MaxOracleAgeSec:          900,
		TwapAcc:                  12345,
		TwapTimeAcc:              600,
		TwapWindowSec:            3600,
		PriceMode:                PriceModeTWAP,
		Paused:                   true,
		PendingOracle:            ids.GenerateTestID(),
		PendingOracleEffectiveTS: 1_770_000_000,
		ProgramVersion:           ProgramVersion,
	}

	data, err := market.MarshalBinary()
	require.NoError(err)

	var decoded Market
	require.NoError(decoded.UnmarshalBinary(data))
	require.Equal(*market, decoded)
}

func TestMarketCodecLittleEndian(t *testing.T) {
	require := require.New(t)

	market := &Market{ContractSizeKG: 0x0102030405060708}
	data, err := market.MarshalBinary()
	require.NoError(err)

	// ContractSizeKG sits right after five 32-byte ids, two single bytes and
	// three more ids plus the settlement timestamp.
	off := 32 + 1 + 32*3 + 32 + 1 + 32*3 + 8
	require.Equal(uint64(0x0102030405060708), binary.LittleEndian.Uint64(data[off:off+8]))
}

func TestDealCodecRoundTrip(t *testing.T) {
	require := require.New(t)

	deal := &Deal{
		ID:                ids.GenerateTestID(),
		Bump:              255,
		Market:            ids.GenerateTestID(),
		Farmer:            ids.GenerateTestID(),
		Buyer:             ids.GenerateTestID(),
		Referrer:          ids.GenerateTestID(),
		FeeSplitBps:       2500,
		FarmerReceive:     ids.GenerateTestID(),
		BuyerReceive:      ids.GenerateTestID(),
		BuyerCftAccount:   ids.GenerateTestID(),
		AgreedPricePerKG:  2000,
		QuantityKG:        5,
		PhysicalDelivery:  true,
		DeadlineTS:        1_765_000_000,
		InitialMarginEach: 1500,
		FarmerDeposited:   1500,
		BuyerDeposited:    11_000,
		Assets:            []ids.ID{ids.GenerateTestID(), ids.GenerateTestID()},
		AssetQty:          []uint64{3, 2},
		MerkleRoot:        [32]byte{1, 2, 3},
		HasMerkleRoot:     true,
		DeliveredKGTotal:  2,
		MarginCallTS:      1_751_000_000,
		MarginCallGraceSec: 60,
		Settled:           false,
		Settling:          false,
		Liquidated:        false,
		VaultAuth:         ids.GenerateTestID(),
		VaultAuthBump:     255,
		FarmerVault:       ids.GenerateTestID(),
		BuyerVault:        ids.GenerateTestID(),
		CreatedAt:         1_750_000_000,
	}

	data, err := deal.MarshalBinary()
	require.NoError(err)

	var decoded Deal
	require.NoError(decoded.UnmarshalBinary(data))
	require.Equal(*deal, decoded)
}

func TestDealCodecRejectsOversizedAssetList(t *testing.T) {
	require := require.New(t)

	deal := &Deal{}
	for i := 0; i < MaxAssets+1; i++ {
		deal.Assets = append(deal.Assets, ids.GenerateTestID())
		deal.AssetQty = append(deal.AssetQty, uint64(i))
	}
	_, err := deal.MarshalBinary()
	require.Error(err)
}

func TestDealCodecShortBuffer(t *testing.T) {
	var decoded Deal
	require.Error(t, decoded.UnmarshalBinary([]byte{1, 2, 3}))
}

func TestCodeMapsErrors(t *testing.T) {
	require := require.New(t)
	require.Equal("NonceReplay", Code(ErrNonceReplay))
	require.Equal("Paused", Code(ErrPaused))
	require.Equal("Internal", Code(errShortBuffer))
}
