package deal

import (
	"errors"

	"marketplace-chat/internal/models"
)

var (
	ErrNotBuyer       = errors.New("only the buyer can propose closing the deal")
	ErrNotSeller      = errors.New("only the seller can respond to a deal")
	ErrInvalidBudget  = errors.New("budget must be a positive number")
	ErrNoMessages     = errors.New("chat has no messages yet")
	ErrInvalidAction  = errors.New("action must be accept or reject")
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrDealPending    = errors.New("a deal is already awaiting seller approval")
	ErrDealClosed     = errors.New("deal already closed")
	ErrNoPendingDeal  = errors.New("no deal is awaiting approval")
	ErrDealResolved   = errors.New("deal already resolved")
	ErrDealBusy       = errors.New("a response to this deal is already in progress")
	ErrDealUnresolved = errors.New("deal id could not be resolved")
	ErrRatingLocked   = errors.New("rating is available after the deal is accepted")
	ErrAlreadyRated   = errors.New("chat already rated")
	ErrChatUnresolved = errors.New("chat id could not be resolved")
)

// IsValidation reports whether err is a rejected input rather than a state
// conflict or an upstream failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		models.ErrIncompleteKey, ErrNotBuyer, ErrNotSeller, ErrInvalidBudget,
		ErrNoMessages, ErrInvalidAction, ErrInvalidRating,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err was caused by the current deal state.
func IsConflict(err error) bool {
	for _, target := range []error{
		models.ErrSelfChat, ErrDealPending, ErrDealClosed, ErrNoPendingDeal,
		ErrDealResolved, ErrDealBusy, ErrRatingLocked, ErrAlreadyRated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
