package dispute

import (
	"context"
	"errors"
)

var (
	// ErrInvalidReason signals an unknown dispute reason.
	ErrInvalidReason = errors.New("dispute: invalid reason")
	// ErrExplanationRequired signals reason "other" without an explanation.
	ErrExplanationRequired = errors.New("dispute: explanation required")
	// ErrInvalidResolution signals a malformed resolution request.
	ErrInvalidResolution = errors.New("dispute: invalid resolution")
)

// Store is the repository interface the service depends on.
type Store interface {
	File(ctx context.Context, agentID, recruitID string, reason Reason, explanation string) (Record, error)
	Resolve(ctx context.Context, adminID, disputeID string, status Status, adminNotes string, action *ResolutionAction) (Record, error)
	ListForAgent(ctx context.Context, agentID string) ([]Record, error)
	ListAll(ctx context.Context, status Status) ([]Record, error)
	Logs(ctx context.Context, disputeID string) ([]Log, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// File validates and opens a dispute on behalf of the agent.
func (s *Service) File(ctx context.Context, agentID, recruitID string, reason Reason, explanation string) (Record, error) {
	if !ValidReason(reason) {
		return Record{}, ErrInvalidReason
	}
	if reason == ReasonOther && explanation == "" {
		return Record{}, ErrExplanationRequired
	}
	return s.store.File(ctx, agentID, recruitID, reason, explanation)
}

// Resolve approves or denies a pending dispute. Approvals may carry a
// resolution action; denials never do.
func (s *Service) Resolve(ctx context.Context, adminID, disputeID string, status Status, adminNotes string, action ResolutionAction) (Record, error) {
	switch status {
	case StatusApproved:
		if action == "" {
			return s.store.Resolve(ctx, adminID, disputeID, status, adminNotes, nil)
		}
		if !ValidResolutionAction(action) {
			return Record{}, ErrInvalidResolution
		}
		return s.store.Resolve(ctx, adminID, disputeID, status, adminNotes, &action)
	case StatusDenied:
		return s.store.Resolve(ctx, adminID, disputeID, status, adminNotes, nil)
	default:
		return Record{}, ErrInvalidResolution
	}
}

// ListForAgent returns the agent's own disputes.
func (s *Service) ListForAgent(ctx context.Context, agentID string) ([]Record, error) {
	return s.store.ListForAgent(ctx, agentID)
}

// ListAll returns every dispute, optionally filtered by status.
func (s *Service) ListAll(ctx context.Context, status Status) ([]Record, error) {
	if status != "" && status != StatusPendingReview && status != StatusApproved && status != StatusDenied {
		return nil, ErrInvalidResolution
	}
	return s.store.ListAll(ctx, status)
}

// Logs returns the audit trail of one dispute.
func (s *Service) Logs(ctx context.Context, disputeID string) ([]Log, error) {
	return s.store.Logs(ctx, disputeID)
}
