package recruit

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	recruits map[string]Recruit
}

func newFakeStore() *fakeStore {
	return &fakeStore{recruits: make(map[string]Recruit)}
}

func (f *fakeStore) ListByOwner(_ context.Context, agentID string) ([]Recruit, error) {
	out := []Recruit{}
	for _, r := range f.recruits {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, recruitID, agentID string) (Recruit, error) {
	r, ok := f.recruits[recruitID]
	if !ok || r.AgentID != agentID {
		return Recruit{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, recruitID, agentID string, status Status) (Recruit, error) {
	r, err := f.Get(ctx, recruitID, agentID)
	if err != nil {
		return Recruit{}, err
	}
	r.Status = status
	f.recruits[recruitID] = r
	return r, nil
}

func (f *fakeStore) UpdateNotes(ctx context.Context, recruitID, agentID, notes string) (Recruit, error) {
	r, err := f.Get(ctx, recruitID, agentID)
	if err != nil {
		return Recruit{}, err
	}
	r.Notes = notes
	f.recruits[recruitID] = r
	return r, nil
}

func TestService_UpdateStatusAndNotes(t *testing.T) {
	store := newFakeStore()
	store.recruits["r1"] = Recruit{ID: "r1", AgentID: "agent-1", Status: StatusNewRecruit}
	svc := NewService(store)

	status := StatusContacted
	notes := "left voicemail"
	rec, err := svc.Update(context.Background(), "r1", "agent-1", UpdateParams{Status: &status, Notes: &notes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Status != StatusContacted {
		t.Fatalf("expected status contacted, got %s", rec.Status)
	}
	if rec.Notes != notes {
		t.Fatalf("expected notes %q, got %q", notes, rec.Notes)
	}
}

func TestService_UpdateInvalidStatus(t *testing.T) {
	store := newFakeStore()
	store.recruits["r1"] = Recruit{ID: "r1", AgentID: "agent-1", Status: StatusNewRecruit}
	svc := NewService(store)

	bad := Status("archived")
	_, err := svc.Update(context.Background(), "r1", "agent-1", UpdateParams{Status: &bad})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_UpdateForeignRecruit(t *testing.T) {
	store := newFakeStore()
	store.recruits["r1"] = Recruit{ID: "r1", AgentID: "agent-1", Status: StatusNewRecruit}
	svc := NewService(store)

	status := StatusContacted
	_, err := svc.Update(context.Background(), "r1", "agent-2", UpdateParams{Status: &status})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign recruit, got %v", err)
	}
}

func TestService_UpdateNoFields(t *testing.T) {
	store := newFakeStore()
	store.recruits["r1"] = Recruit{ID: "r1", AgentID: "agent-1", Status: StatusNewRecruit, Notes: "keep"}
	svc := NewService(store)

	rec, err := svc.Update(context.Background(), "r1", "agent-1", UpdateParams{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Status != StatusNewRecruit || rec.Notes != "keep" {
		t.Fatalf("expected untouched recruit, got %+v", rec)
	}
}
