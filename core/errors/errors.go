package errors

import stderrors "errors"

var (
	ErrZeroOwner           = stderrors.New("state: owner must not be the zero address")
	ErrOwnerRegistered     = stderrors.New("state: owner already registered")
	ErrAccountUnregistered = stderrors.New("state: account has no registered owner")
	ErrTokenUnknown        = stderrors.New("state: token not registered")
	ErrTokenDisabled       = stderrors.New("state: token disabled for deposits")
	ErrTokenRegistered     = stderrors.New("state: token address already registered")
	ErrInsufficientBalance = stderrors.New("apply: insufficient balance")
	ErrStorageReplay       = stderrors.New("apply: storage slot consumed by newer storage id")
	ErrOrderCancelled      = stderrors.New("apply: order cancelled")
	ErrDepositProcessed    = stderrors.New("apply: deposit already processed")
	ErrWithdrawalProcessed = stderrors.New("apply: withdrawal already processed")
	ErrEmptyBlock          = stderrors.New("commit: no pending requests")
)
