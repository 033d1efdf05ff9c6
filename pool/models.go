package pool

import "time"

// Lead mirrors a recruit_pool row: an unassigned lead awaiting sale.
type Lead struct {
	ID           string
	FullName     string
	Phone        string
	Email        string
	SocialHandle string
	Licensed     bool
	Available    bool
	ReservedBy   *string
	ReservedAt   *time.Time
	SourceSheet  string
	SourceRow    int
	CreatedAt    time.Time
}

// LeadInput is one inbound row from the sourcing system.
type LeadInput struct {
	FullName     string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	SocialHandle string `json:"social"`
	Licensed     bool   `json:"licensed"`
	SourceSheet  string `json:"source_sheet"`
	SourceRow    int    `json:"source_row"`
}

// Counts reports currently available inventory per lead type.
type Counts struct {
	Unlicensed int
	Licensed   int
}
