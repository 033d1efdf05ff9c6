package dispute

import "time"

// Reason is the agent's stated grounds for disputing a recruit.
type Reason string

const (
	ReasonUnreachable     Reason = "unreachable"
	ReasonWrongNumber     Reason = "wrong_number"
	ReasonNotInterested   Reason = "not_interested"
	ReasonAlreadyLicensed Reason = "already_licensed"
	ReasonBadContactInfo  Reason = "bad_contact_info"
	ReasonOther           Reason = "other"
)

// ValidReason reports whether r is a known dispute reason.
func ValidReason(r Reason) bool {
	switch r {
	case ReasonUnreachable, ReasonWrongNumber, ReasonNotInterested,
		ReasonAlreadyLicensed, ReasonBadContactInfo, ReasonOther:
		return true
	}
	return false
}

// Status represents the lifecycle of a dispute record. Once approved or
// denied a dispute never changes again.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusDenied        Status = "denied"
)

// ResolutionAction is what an approval grants the agent.
type ResolutionAction string

const (
	ResolutionReplaceRecruit ResolutionAction = "replace_recruit"
	ResolutionCreditAgent    ResolutionAction = "credit_agent"
	ResolutionMarkInvalid    ResolutionAction = "mark_invalid"
)

// ValidResolutionAction reports whether a is a known resolution action.
func ValidResolutionAction(a ResolutionAction) bool {
	switch a {
	case ResolutionReplaceRecruit, ResolutionCreditAgent, ResolutionMarkInvalid:
		return true
	}
	return false
}

// Record mirrors the disputes table.
type Record struct {
	ID               string
	RecruitID        string
	AgentID          string
	Reason           Reason
	Explanation      string
	Status           Status
	AdminNotes       string
	ResolutionAction *ResolutionAction
	ResolvedBy       *string
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Log is one append-only audit entry. Entries are written in the same
// transaction as the state change they describe.
type Log struct {
	ID        int64
	DisputeID string
	Action    string
	ActorID   *string
	Details   []byte
	CreatedAt time.Time
}
