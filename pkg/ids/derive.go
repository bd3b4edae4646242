// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"golang.org/x/crypto/sha3"
)

// SeedVersion prefixes every derivation so the schema can be rotated without
// colliding with addresses minted under an older layout.
const SeedVersion = "v1"

// Derivation seed tags. The full seed tuple for each record type is
// (SeedVersion, tag, parents...).
const (
	SeedMarket      = "market"
	SeedDeal        = "deal"
	SeedVaultAuth   = "vault_auth"
	SeedCftMintAuth = "cft_auth"
)

// Derive produces the deterministic address for the given seed tuple under a
// program identifier, along with the bump byte that completes the preimage.
// The bump is always 255: every candidate preimage yields a usable address, so
// no search takes place. The bump is part of the hashed preimage, which lets
// holders of the tuple recompute the address without storing any key material.
func Derive(program ID, seeds ...[]byte) (ID, byte) {
	bump := byte(255)
	return deriveWithBump(program, bump, seeds...), bump
}

// DeriveWithBump recomputes the address for a previously derived (seeds, bump)
// pair. Verifiers use this to check that a presented bump matches an address.
func DeriveWithBump(program ID, bump byte, seeds ...[]byte) ID {
	return deriveWithBump(program, bump, seeds...)
}

func deriveWithBump(program ID, bump byte, seeds ...[]byte) ID {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(SeedVersion))
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(program[:])
	var out ID
	copy(out[:], h.Sum(nil))
	return out
}

// MarketAddress derives the market record address.
func MarketAddress(program, authority, cftMint, quoteMint ID) (ID, byte) {
	return Derive(program, []byte(SeedMarket), authority[:], cftMint[:], quoteMint[:])
}

// DealAddress derives the deal record address.
func DealAddress(program, market, farmer, buyer ID) (ID, byte) {
	return Derive(program, []byte(SeedDeal), market[:], farmer[:], buyer[:])
}

// VaultAuthAddress derives the per-deal vault signing authority.
func VaultAuthAddress(program, deal ID) (ID, byte) {
	return Derive(program, []byte(SeedVaultAuth), deal[:])
}

// CftMintAuthAddress derives the delivery-token mint authority.
func CftMintAuthAddress(program, cftMint ID) (ID, byte) {
	return Derive(program, []byte(SeedCftMintAuth), cftMint[:])
}
