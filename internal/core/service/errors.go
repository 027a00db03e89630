package service

import "errors"

var (
	ErrValidation                 = errors.New("invalid input")
	ErrNotFound                   = errors.New("not found")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInsufficientLedgerQuantity = errors.New("insufficient ledger quantity")
	ErrNoCostBasis                = errors.New("no cost basis: ledger quantity is zero")
	ErrDateConflict               = errors.New("date cascade exceeded its bound")
	ErrUserBusy                   = errors.New("another operation for this user is in progress")
)
