package escrow

import "errors"

var (
	ErrNotFound         = errors.New("lease not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadyFinalized = errors.New("lease is not active")
	ErrTermNotEnded     = errors.New("lease period has not ended yet")
	ErrApprovalMissing  = errors.New("landlord has not approved the deposit return")
	ErrValueMismatch    = errors.New("incorrect deposit amount")
	ErrInvalidTerm      = errors.New("invalid lease term")
)
