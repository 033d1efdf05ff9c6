package recruit

import "time"

// Status is the pipeline stage an agent works a recruit through.
type Status string

const (
	StatusNewRecruit     Status = "new_recruit"
	StatusContacted      Status = "contacted"
	StatusFollowUpNeeded Status = "follow_up_needed"
	StatusSignedUp       Status = "signed_up"
	StatusNotInterested  Status = "not_interested"
	StatusDoNotCall      Status = "do_not_call"
)

// ValidStatus reports whether s is a known pipeline stage.
func ValidStatus(s Status) bool {
	switch s {
	case StatusNewRecruit, StatusContacted, StatusFollowUpNeeded,
		StatusSignedUp, StatusNotInterested, StatusDoNotCall:
		return true
	default:
		return false
	}
}

// Recruit mirrors the recruits table: a lead delivered to exactly one agent.
// Rows are never deleted.
type Recruit struct {
	ID           string
	AgentID      string
	PurchaseID   string
	FullName     string
	Phone        string
	Email        string
	SocialHandle string
	Licensed     bool
	LicensedAt   *time.Time
	Status       Status
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
