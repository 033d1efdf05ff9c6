package purchase

import (
	"fmt"
	"time"
)

// Type classifies a purchase unit. FreeFirst is assigned by the orchestrator,
// never requested directly.
type Type string

const (
	TypeUnlicensed Type = "unlicensed"
	TypeLicensed   Type = "licensed"
	TypeFreeFirst  Type = "free_first"
)

// RequestableType reports whether callers may ask for this type.
func RequestableType(t Type) bool {
	return t == TypeUnlicensed || t == TypeLicensed
}

// Status is the purchase lifecycle: pending while a payment intent is
// outstanding, then delivered or failed. Delivered purchases are immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Purchase mirrors one recruit_purchases row: a single unit of a buy
// transaction.
type Purchase struct {
	ID          string
	BuyerID     string
	Type        Type
	AmountCents int64
	Status      Status
	PoolLeadID  *string
	ProviderRef string
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// BuyResult summarizes a completed synchronous purchase.
type BuyResult struct {
	PurchaseIDs        []string
	TotalCents         int64
	FreeRecruitApplied bool
}

// Pricing holds per-type unit prices in cents.
type Pricing struct {
	UnlicensedCents int64
	LicensedCents   int64
}

// For returns the standard price of a requestable type.
func (p Pricing) For(t Type) int64 {
	if t == TypeLicensed {
		return p.LicensedCents
	}
	return p.UnlicensedCents
}

// InsufficientInventoryError reports a shortfall detected before any side
// effect; Available tells the caller how many units could actually be bought.
type InsufficientInventoryError struct {
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("purchase: insufficient inventory: requested %d, available %d", e.Requested, e.Available)
}
