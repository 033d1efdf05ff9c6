package dispute

import (
	"context"
	"errors"
	"testing"
)

func TestFile_Validation(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	if _, err := svc.File(context.Background(), "agent-1", "recruit-1", Reason("vibes"), ""); !errors.Is(err, ErrInvalidReason) {
		t.Errorf("expected ErrInvalidReason, got %v", err)
	}
	if _, err := svc.File(context.Background(), "agent-1", "recruit-1", ReasonOther, ""); !errors.Is(err, ErrExplanationRequired) {
		t.Errorf("expected ErrExplanationRequired for bare other, got %v", err)
	}
	if store.filed != 0 {
		t.Errorf("expected no store call on validation failure")
	}

	if _, err := svc.File(context.Background(), "agent-1", "recruit-1", ReasonOther, "moved abroad"); err != nil {
		t.Errorf("expected other with explanation to pass, got %v", err)
	}
	if _, err := svc.File(context.Background(), "agent-1", "recruit-1", ReasonUnreachable, ""); err != nil {
		t.Errorf("expected unreachable without explanation to pass, got %v", err)
	}
}

func TestFile_PendingExists(t *testing.T) {
	store := &fakeStore{fileErr: ErrPendingExists}
	svc := NewService(store)

	if _, err := svc.File(context.Background(), "agent-1", "recruit-1", ReasonWrongNumber, ""); !errors.Is(err, ErrPendingExists) {
		t.Errorf("expected ErrPendingExists, got %v", err)
	}
}

func TestFile_ForeignRecruit(t *testing.T) {
	store := &fakeStore{fileErr: ErrNotFound}
	svc := NewService(store)

	if _, err := svc.File(context.Background(), "agent-2", "recruit-1", ReasonUnreachable, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_ApproveActionOptional(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	if _, err := svc.Resolve(context.Background(), "admin-1", "dispute-1", StatusApproved, "looks legit", ResolutionAction("")); err != nil {
		t.Fatalf("approve without action: %v", err)
	}
	if store.lastAction != nil {
		t.Errorf("expected no resolution action recorded, got %v", *store.lastAction)
	}

	if _, err := svc.Resolve(context.Background(), "admin-1", "dispute-1", StatusApproved, "", ResolutionAction("refund_everything")); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution for unknown action, got %v", err)
	}

	if _, err := svc.Resolve(context.Background(), "admin-1", "dispute-1", StatusApproved, "verified", ResolutionReplaceRecruit); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if store.lastAction == nil || *store.lastAction != ResolutionReplaceRecruit {
		t.Errorf("expected resolution action forwarded, got %v", store.lastAction)
	}
}

func TestResolve_DenyClearsAction(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	if _, err := svc.Resolve(context.Background(), "admin-1", "dispute-1", StatusDenied, "number rings fine", ResolutionCreditAgent); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if store.lastAction != nil {
		t.Errorf("expected no resolution action on denial, got %v", *store.lastAction)
	}
}

func TestResolve_InvalidStatus(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	if _, err := svc.Resolve(context.Background(), "admin-1", "dispute-1", StatusPendingReview, "", ResolutionCreditAgent); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution for pending_review target, got %v", err)
	}
	if store.resolved != 0 {
		t.Errorf("expected no store call")
	}
}

func TestResolve_DoubleResolution(t *testing.T) {
	store := &fakeStore{resolveErr: ErrAlreadyResolved}
	svc := NewService(store)

	if _, err := svc.Resolve(context.Background(), "admin-1", "dispute-1", StatusDenied, "", ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

type fakeStore struct {
	filed      int
	fileErr    error
	resolved   int
	resolveErr error
	lastAction *ResolutionAction
}

func (f *fakeStore) File(ctx context.Context, agentID, recruitID string, reason Reason, explanation string) (Record, error) {
	f.filed++
	if f.fileErr != nil {
		return Record{}, f.fileErr
	}
	return Record{ID: "dispute-1", RecruitID: recruitID, AgentID: agentID, Reason: reason, Explanation: explanation, Status: StatusPendingReview}, nil
}

func (f *fakeStore) Resolve(ctx context.Context, adminID, disputeID string, status Status, adminNotes string, action *ResolutionAction) (Record, error) {
	f.resolved++
	f.lastAction = action
	if f.resolveErr != nil {
		return Record{}, f.resolveErr
	}
	return Record{ID: disputeID, Status: status, AdminNotes: adminNotes, ResolutionAction: action, ResolvedBy: &adminID}, nil
}

func (f *fakeStore) ListForAgent(ctx context.Context, agentID string) ([]Record, error) {
	return nil, nil
}

func (f *fakeStore) ListAll(ctx context.Context, status Status) ([]Record, error) {
	return nil, nil
}

func (f *fakeStore) Logs(ctx context.Context, disputeID string) ([]Log, error) {
	return nil, nil
}
