package recruit

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidStatus signals an unknown pipeline stage.
var ErrInvalidStatus = errors.New("recruit: invalid status")

// Store abstracts repository operations for the service.
type Store interface {
	ListByOwner(ctx context.Context, agentID string) ([]Recruit, error)
	Get(ctx context.Context, recruitID, agentID string) (Recruit, error)
	UpdateStatus(ctx context.Context, recruitID, agentID string, status Status) (Recruit, error)
	UpdateNotes(ctx context.Context, recruitID, agentID, notes string) (Recruit, error)
}

// Service exposes agent-facing recruit operations.
type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, agentID string) ([]Recruit, error) {
	return s.repo.ListByOwner(ctx, agentID)
}

func (s *Service) Get(ctx context.Context, recruitID, agentID string) (Recruit, error) {
	return s.repo.Get(ctx, recruitID, agentID)
}

// UpdateParams carries the mutable fields an agent may change. Nil means
// leave the field alone.
type UpdateParams struct {
	Status *Status
	Notes  *string
}

// Update applies status and/or notes changes for the owning agent.
func (s *Service) Update(ctx context.Context, recruitID, agentID string, params UpdateParams) (Recruit, error) {
	if params.Status == nil && params.Notes == nil {
		return s.repo.Get(ctx, recruitID, agentID)
	}

	var (
		rec Recruit
		err error
	)

	if params.Status != nil {
		status := Status(strings.TrimSpace(string(*params.Status)))
		if !ValidStatus(status) {
			return Recruit{}, ErrInvalidStatus
		}
		rec, err = s.repo.UpdateStatus(ctx, recruitID, agentID, status)
		if err != nil {
			return Recruit{}, err
		}
	}

	if params.Notes != nil {
		rec, err = s.repo.UpdateNotes(ctx, recruitID, agentID, *params.Notes)
		if err != nil {
			return Recruit{}, err
		}
	}

	return rec, nil
}
