package auth

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

// SubscriptionStatus mirrors the billing provider's view of an account.
type SubscriptionStatus string

const (
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// ValidSubscriptionStatus reports whether s is a known billing status.
func ValidSubscriptionStatus(s SubscriptionStatus) bool {
	switch s {
	case SubscriptionInactive, SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled:
		return true
	default:
		return false
	}
}

// User is the domain representation of an account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID                   string
	Email                string
	FullName             string
	PasswordHash         string
	Phone                *string
	Role                 Role
	SubscriptionStatus   SubscriptionStatus
	FreeRecruitClaimed   bool
	FreeRecruitClaimedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CanPurchase reports whether the subscription gate admits this user to the
// purchase flow.
func (u User) CanPurchase() bool {
	return u.SubscriptionStatus == SubscriptionTrialing || u.SubscriptionStatus == SubscriptionActive
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains account login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
