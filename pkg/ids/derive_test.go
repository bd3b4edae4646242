// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveIsDeterministic(t *testing.T) {
	require := require.New(t)

	program := GenerateTestID()
	authority := GenerateTestID()
	cft := GenerateTestID()
	quote := GenerateTestID()

	a1, bump1 := MarketAddress(program, authority, cft, quote)
	a2, bump2 := MarketAddress(program, authority, cft, quote)
	require.Equal(a1, a2)
	require.Equal(bump1, bump2)
	require.Equal(a1, DeriveWithBump(program, bump1, []byte(SeedMarket), authority[:], cft[:], quote[:]))
}

func TestDeriveSeparatesTuples(t *testing.T) {
	require := require.New(t)

	program := GenerateTestID()
	deal := GenerateTestID()

	vaultAuth, _ := VaultAuthAddress(program, deal)
	cftAuth, _ := CftMintAuthAddress(program, deal)
	require.NotEqual(vaultAuth, cftAuth)

	otherProgram := GenerateTestID()
	otherVault, _ := VaultAuthAddress(otherProgram, deal)
	require.NotEqual(vaultAuth, otherVault)
}

func TestIDHexRoundTrip(t *testing.T) {
	require := require.New(t)

	id := GenerateTestID()
	parsed, err := FromString(id.String())
	require.NoError(err)
	require.Equal(id, parsed)

	_, err = FromString("zz")
	require.Error(err)

	_, err = FromBytes([]byte{1, 2, 3})
	require.Error(err)

	require.False(id.IsZero())
	require.True(Empty.IsZero())
}

func TestIDTextMarshaling(t *testing.T) {
	require := require.New(t)

	id := GenerateTestID()
	text, err := id.MarshalText()
	require.NoError(err)

	var decoded ID
	require.NoError(decoded.UnmarshalText(text))
	require.Equal(id, decoded)
}
