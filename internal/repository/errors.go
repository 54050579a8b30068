package repository

import "errors"

var (
	// ErrValidation marks requests whose shape is wrong; nothing is mutated.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound means the account does not exist in the durable store.
	ErrNotFound = errors.New("account not found")
	// ErrInsufficientFunds blocks a debit that would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflict means the mutation lost its concurrency race after one retry.
	ErrConflict = errors.New("balance contended, lost the race")
	// ErrDuplicateAccount means the username is already registered.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrBadCredentials covers unknown usernames and wrong passwords alike.
	ErrBadCredentials = errors.New("invalid credentials")
	// ErrStorage wraps collaborator failures; callers treat them as retryable.
	ErrStorage = errors.New("storage failure")
)
