// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"sync"

	"github.com/btorressz/coffee-futures/pkg/ids"
)

// Mint describes a fungible token mint.
type Mint struct {
	ID        ids.ID
	Decimals  uint8
	Authority ids.ID
	Supply    uint64
}

// Account is a single-mint token account.
type Account struct {
	ID      ids.ID
	Mint    ids.ID
	Owner   ids.ID
	Balance uint64
}

// MemLedger is an in-memory Ledger. The daemon hosts one as its execution
// environment; tests drive it directly.
type MemLedger struct {
	mu       sync.RWMutex
	mints    map[ids.ID]*Mint
	accounts map[ids.ID]*Account
}

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		mints:    make(map[ids.ID]*Mint),
		accounts: make(map[ids.ID]*Account),
	}
}

// CreateMint registers a mint under the given authority.
func (l *MemLedger) CreateMint(mint ids.ID, decimals uint8, authority ids.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.mints[mint]; exists {
		return ErrMintExists
	}
	l.mints[mint] = &Mint{ID: mint, Decimals: decimals, Authority: authority}
	return nil
}

// CreateAccount registers a token account bound to one mint and owner.
func (l *MemLedger) CreateAccount(account, mint, owner ids.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[account]; exists {
		return ErrAccountExists
	}
	if _, exists := l.mints[mint]; !exists {
		return ErrMintNotFound
	}
	l.accounts[account] = &Account{ID: account, Mint: mint, Owner: owner}
	return nil
}

// Transfer moves amount between accounts of the same mint. The signer must be
// the owner of the source account. Fails atomically on insufficient balance.
func (l *MemLedger) Transfer(from, to ids.ID, amount uint64, signer ids.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.accounts[from]
	if !ok {
		return ErrAccountNotFound
	}
	dst, ok := l.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Owner != signer {
		return ErrNotOwner
	}
	if src.Balance < amount {
		return ErrInsufficientBalance
	}
	src.Balance -= amount
	dst.Balance += amount
	return nil
}

// MintTo issues new supply to an account; the signer must hold the mint
// authority.
func (l *MemLedger) MintTo(mint, to ids.ID, amount uint64, signer ids.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.mints[mint]
	if !ok {
		return ErrMintNotFound
	}
	if m.Authority != signer {
		return ErrNotMintAuthority
	}
	dst, ok := l.accounts[to]
	if !ok {
		return ErrAccountNotFound
	}
	if dst.Mint != mint {
		return ErrMintMismatch
	}
	m.Supply += amount
	dst.Balance += amount
	return nil
}

// BalanceOf returns the balance of an account, zero when absent.
func (l *MemLedger) BalanceOf(account ids.ID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[account]
	if !ok {
		return 0
	}
	return acct.Balance
}

// AccountInfo returns a copy of the account record.
func (l *MemLedger) AccountInfo(account ids.ID) (Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[account]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

// Decimals returns the precision of a mint.
func (l *MemLedger) Decimals(mint ids.ID) (uint8, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.mints[mint]
	if !ok {
		return 0, false
	}
	return m.Decimals, true
}

// MintInfo returns a copy of the mint record.
func (l *MemLedger) MintInfo(mint ids.ID) (Mint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.mints[mint]
	if !ok {
		return Mint{}, false
	}
	return *m, true
}

// SetBalance seeds an account balance for testing and initialization.
func (l *MemLedger) SetBalance(account ids.ID, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[account]; ok {
		acct.Balance = amount
	}
}
