package domain

import (
	"errors"
	"time"
)

var (
	ErrMissingFields       = errors.New("required issuance fields are missing")
	ErrInsufficientPayment = errors.New("payment amount is below the lowest grant tier")
	ErrDuplicateOrder      = errors.New("entitlements already issued for this order")
	ErrAlreadyIssuedToday  = errors.New("entitlements already issued to this user today")
	ErrInsufficientBalance = errors.New("no entitlements left to redeem")
	ErrStoreUnavailable    = errors.New("entitlement store unavailable")
)

// Entitlement is one issuance record. Granted is set once from the tier table
// and only ever moves down: minus one per redemption, or straight to zero on
// an administrative reset. A user's balance is the sum of Granted across all
// of their records, never a stored counter.
type Entitlement struct {
	ID         string
	UserID     string
	OrderKey   string
	AmountPaid int64
	Granted    int
	IssuedAt   time.Time
}

// IssueResult is returned to the caller after a successful issuance.
type IssueResult struct {
	RecordID string
	Granted  int
}
