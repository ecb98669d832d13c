package domain

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidParameters     = errors.New("invalid round parameters")
	ErrRoundNotFound         = errors.New("round not found")
	ErrRoundNotOpen          = errors.New("round not open")
	ErrRoundNotEligible      = errors.New("round not eligible for closing")
	ErrRoundExpired          = errors.New("round expired")
	ErrInvalidEntryCount     = errors.New("invalid entry count")
	ErrSoldOut               = errors.New("round sold out")
	ErrIncorrectPayment      = errors.New("incorrect payment")
	ErrRequestAlreadyPending = errors.New("randomness request already pending")
	ErrUnknownRequest        = errors.New("unknown randomness request")
	ErrAlreadyResolved       = errors.New("round already resolved")
	ErrNoEntrants            = errors.New("round has no entrants")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrHistoryUnavailable    = errors.New("event history not kept by this store")
)
