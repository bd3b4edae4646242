// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import "errors"

// Stable engine error codes. Every engine-raised entrypoint failure maps to
// exactly one of these so callers can match with errors.Is and the API can
// surface the code string unchanged across releases; ledger errors passed
// through unwrapped by a code report as "Internal" (see Code).
var (
	ErrPaused             = errors.New("Paused")
	ErrUnauthorized       = errors.New("Unauthorized")
	ErrStaleOracle        = errors.New("StaleOracle")
	ErrNonceReplay        = errors.New("NonceReplay")
	ErrPriceBand          = errors.New("PriceBand")
	ErrInsufficientMargin = errors.New("InsufficientMargin")
	ErrMarginNotCalled    = errors.New("MarginNotCalled")
	ErrGraceNotElapsed    = errors.New("GraceNotElapsed")
	ErrAlreadySettled     = errors.New("AlreadySettled")
	ErrNotSettled         = errors.New("NotSettled")
	ErrReentrancy         = errors.New("Reentrancy")
	ErrDeadlineNotReached = errors.New("DeadlineNotReached")
	ErrBadMerkleProof     = errors.New("BadMerkleProof")
	ErrExceedsQuantity    = errors.New("ExceedsQuantity")
	ErrCapExceeded        = errors.New("CapExceeded")
	ErrMathOverflow       = errors.New("MathOverflow")
	ErrDustTransfer       = errors.New("DustTransfer")

	// Validation failures outside the stable transaction codes.
	ErrInvalidArgument = errors.New("InvalidArgument")
	ErrNotFound        = errors.New("NotFound")
	ErrAlreadyExists   = errors.New("AlreadyExists")
)

// codes lists the stable errors in a fixed order for Code lookups.
var codes = []error{
	ErrPaused,
	ErrUnauthorized,
	ErrStaleOracle,
	ErrNonceReplay,
	ErrPriceBand,
	ErrInsufficientMargin,
	ErrMarginNotCalled,
	ErrGraceNotElapsed,
	ErrAlreadySettled,
	ErrNotSettled,
	ErrReentrancy,
	ErrDeadlineNotReached,
	ErrBadMerkleProof,
	ErrExceedsQuantity,
	ErrCapExceeded,
	ErrMathOverflow,
	ErrDustTransfer,
	ErrInvalidArgument,
	ErrNotFound,
	ErrAlreadyExists,
}

// Code returns the stable code string for an engine error, or "Internal" when
// the error does not wrap one of the declared codes.
func Code(err error) string {
	for _, code := range codes {
		if errors.Is(err, code) {
			return code.Error()
		}
	}
	return "Internal"
}
