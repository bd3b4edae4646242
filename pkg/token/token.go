// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"errors"

	"github.com/btorressz/coffee-futures/pkg/ids"
)

var (
	ErrMintExists          = errors.New("token: mint already exists")
	ErrMintNotFound        = errors.New("token: mint not found")
	ErrAccountExists       = errors.New("token: account already exists")
	ErrAccountNotFound     = errors.New("token: account not found")
	ErrMintMismatch        = errors.New("token: account mint mismatch")
	ErrNotOwner            = errors.New("token: signer is not the account owner")
	ErrNotMintAuthority    = errors.New("token: signer is not the mint authority")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
)

// Ledger is the fungible-token collaborator consumed by the engine. Transfers
// fail atomically on insufficient balance; Transfer and MintTo check the
// supplied signer against the account owner or mint authority.
type Ledger interface {
	CreateMint(mint ids.ID, decimals uint8, authority ids.ID) error
	CreateAccount(account, mint, owner ids.ID) error
	Transfer(from, to ids.ID, amount uint64, signer ids.ID) error
	MintTo(mint, to ids.ID, amount uint64, signer ids.ID) error
	BalanceOf(account ids.ID) uint64
	Decimals(mint ids.ID) (uint8, bool)
}
