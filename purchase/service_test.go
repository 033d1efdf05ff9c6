package purchase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"agentsurge/auth"
	"agentsurge/pool"
	"agentsurge/promo"
	"agentsurge/recruit"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestBuy_FirstRecruitFree(t *testing.T) {
	f := newFixture()
	f.inv.leads = []pool.Lead{
		{ID: "lead-1", FullName: "Ann Ames", Phone: "(555) 010-0001"},
		{ID: "lead-2", FullName: "Bob Byrne", Phone: "(555) 010-0002"},
	}

	res, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 2)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if !res.FreeRecruitApplied {
		t.Errorf("expected free recruit to be applied")
	}
	if res.TotalCents != 3500 {
		t.Errorf("expected total 3500, got %d", res.TotalCents)
	}
	if len(res.PurchaseIDs) != 2 {
		t.Fatalf("expected 2 purchases, got %d", len(res.PurchaseIDs))
	}
	if f.store.inserted[0].Type != TypeFreeFirst || f.store.inserted[0].AmountCents != 0 {
		t.Errorf("expected first unit free, got %s at %d", f.store.inserted[0].Type, f.store.inserted[0].AmountCents)
	}
	if f.store.inserted[1].Type != TypeUnlicensed || f.store.inserted[1].AmountCents != 3500 {
		t.Errorf("expected second unit paid, got %s at %d", f.store.inserted[1].Type, f.store.inserted[1].AmountCents)
	}
	if !f.ledger.flagSet {
		t.Errorf("expected user flag to be flipped")
	}
	if len(f.recruits.created) != 2 {
		t.Errorf("expected 2 recruits, got %d", len(f.recruits.created))
	}
	if len(f.inv.deleted) != 2 {
		t.Errorf("expected 2 pool rows deleted, got %d", len(f.inv.deleted))
	}
	for _, tx := range f.pool.txs {
		if !tx.committed {
			t.Errorf("expected every unit transaction to commit")
		}
	}
}

func TestBuy_UserAlreadyClaimed(t *testing.T) {
	f := newFixture()
	f.users.user.FreeRecruitClaimed = true
	f.inv.leads = []pool.Lead{{ID: "lead-1", FullName: "Ann Ames", Phone: "5550100001"}}

	res, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.FreeRecruitApplied {
		t.Errorf("expected no free recruit for already-claimed user")
	}
	if res.TotalCents != 3500 {
		t.Errorf("expected total 3500, got %d", res.TotalCents)
	}
	if f.ledger.claims != 0 {
		t.Errorf("expected no ledger insert attempt, got %d", f.ledger.claims)
	}
}

func TestBuy_PhoneAlreadyInLedger(t *testing.T) {
	f := newFixture()
	f.ledger.claimErr = promo.ErrAlreadyClaimed
	f.inv.leads = []pool.Lead{{ID: "lead-1", FullName: "Ann Ames", Phone: "5550100001"}}

	res, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.FreeRecruitApplied {
		t.Errorf("expected paid pricing when the phone was freed before")
	}
	if res.TotalCents != 3500 {
		t.Errorf("expected total 3500, got %d", res.TotalCents)
	}
	if f.ledger.flagSet {
		t.Errorf("expected user flag untouched")
	}
	if f.pool.txs[0].rolled && !f.pool.txs[0].committed {
		t.Errorf("expected the unit to commit in the same transaction")
	}
}

func TestBuy_FlagRaceRetriesAsPaid(t *testing.T) {
	f := newFixture()
	f.ledger.flagErr = promo.ErrFlagAlreadySet
	f.inv.leads = []pool.Lead{
		{ID: "lead-1", FullName: "Ann Ames", Phone: "5550100001"},
		{ID: "lead-1", FullName: "Ann Ames", Phone: "5550100001"},
	}

	res, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.FreeRecruitApplied {
		t.Errorf("expected paid fallback after losing the flag race")
	}
	if res.TotalCents != 3500 {
		t.Errorf("expected total 3500, got %d", res.TotalCents)
	}
	if len(f.pool.txs) != 2 {
		t.Fatalf("expected a second transaction for the retry, got %d", len(f.pool.txs))
	}
	if f.pool.txs[0].committed {
		t.Errorf("expected the losing transaction to roll back")
	}
	if !f.pool.txs[1].committed {
		t.Errorf("expected the retry transaction to commit")
	}
}

func TestBuy_InsufficientInventory(t *testing.T) {
	f := newFixture()
	f.inv.leads = []pool.Lead{{ID: "lead-1", FullName: "Ann Ames", Phone: "5550100001"}}

	_, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 3)
	var shortfall *InsufficientInventoryError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
	if shortfall.Requested != 3 || shortfall.Available != 1 {
		t.Errorf("expected 3/1 shortfall, got %d/%d", shortfall.Requested, shortfall.Available)
	}
	if len(f.pool.txs) != 0 {
		t.Errorf("expected no transaction before the pre-flight check fails")
	}
	if len(f.store.inserted) != 0 {
		t.Errorf("expected no purchase rows on shortfall")
	}
}

func TestBuy_LicensedPricingAndStamp(t *testing.T) {
	f := newFixture()
	f.users.user.FreeRecruitClaimed = true
	f.inv.leads = []pool.Lead{{ID: "lead-1", FullName: "Cara Diaz", Phone: "5550100003", Licensed: true}}

	res, err := f.svc.Buy(context.Background(), "user-1", TypeLicensed, 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.TotalCents != 6000 {
		t.Errorf("expected total 6000, got %d", res.TotalCents)
	}
	if !f.recruits.created[0].StampLicensed {
		t.Errorf("expected licensed_at stamp for licensed purchase")
	}
}

func TestBuy_Validation(t *testing.T) {
	f := newFixture()
	f.inv.leads = []pool.Lead{{ID: "lead-1", FullName: "Ann Ames", Phone: "5550100001"}}

	if _, err := f.svc.Buy(context.Background(), "user-1", Type("free_first"), 1); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType for free_first, got %v", err)
	}
	if _, err := f.svc.Buy(context.Background(), "user-1", Type("premium"), 1); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
	if _, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity for zero, got %v", err)
	}
	if _, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 11); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity above max, got %v", err)
	}
}

func TestBuy_SubscriptionGate(t *testing.T) {
	f := newFixture()
	f.users.user.SubscriptionStatus = auth.SubscriptionCanceled
	f.inv.leads = []pool.Lead{{ID: "lead-1", FullName: "Ann Ames", Phone: "5550100001"}}

	if _, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 1); !errors.Is(err, ErrSubscriptionRequired) {
		t.Errorf("expected ErrSubscriptionRequired, got %v", err)
	}
}

func TestBuy_EmptyPhoneStaysPaid(t *testing.T) {
	f := newFixture()
	f.inv.leads = []pool.Lead{{ID: "lead-1", FullName: "Ann Ames", Phone: "ext. none"}}

	res, err := f.svc.Buy(context.Background(), "user-1", TypeUnlicensed, 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.FreeRecruitApplied {
		t.Errorf("expected no free claim for a digitless phone")
	}
}

// fixture wires the service against in-memory fakes.
type fixture struct {
	pool     *fakePool
	users    *fakeUsers
	inv      *fakeInventory
	ledger   *fakeLedger
	recruits *fakeRecruits
	store    *fakeStore
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		pool: &fakePool{},
		users: &fakeUsers{user: auth.User{
			ID:                 "user-1",
			SubscriptionStatus: auth.SubscriptionActive,
		}},
		inv:      &fakeInventory{},
		ledger:   &fakeLedger{},
		recruits: &fakeRecruits{},
		store:    &fakeStore{},
	}
	pricing := Pricing{UnlicensedCents: 3500, LicensedCents: 6000}
	f.svc = NewService(f.pool, f.users, f.inv, f.ledger, f.recruits, f.store, pricing, 10)
	return f
}

type fakeUsers struct {
	user auth.User
	err  error
}

func (f *fakeUsers) GetUserByID(ctx context.Context, userID string) (auth.User, error) {
	if f.err != nil {
		return auth.User{}, f.err
	}
	return f.user, nil
}

type fakeInventory struct {
	leads    []pool.Lead
	reserved map[string]pool.Lead
	deleted  []string
	released []string
}

func (f *fakeInventory) CountAvailableByType(ctx context.Context, licensed bool) (int, error) {
	n := 0
	for _, l := range f.leads {
		if l.Licensed == licensed {
			n++
		}
	}
	return n, nil
}

func (f *fakeInventory) ClaimNext(ctx context.Context, tx pgx.Tx, licensed bool, buyerID string) (pool.Lead, error) {
	for i, l := range f.leads {
		if l.Licensed == licensed {
			f.leads = append(f.leads[:i], f.leads[i+1:]...)
			return l, nil
		}
	}
	return pool.Lead{}, pool.ErrPoolExhausted
}

func (f *fakeInventory) GetReservedForUpdate(ctx context.Context, tx pgx.Tx, leadID, buyerID string) (pool.Lead, error) {
	l, ok := f.reserved[leadID]
	if !ok {
		return pool.Lead{}, pool.ErrNotReserved
	}
	return l, nil
}

func (f *fakeInventory) Release(ctx context.Context, tx pgx.Tx, leadIDs []string, buyerID string) error {
	f.released = append(f.released, leadIDs...)
	return nil
}

func (f *fakeInventory) Delete(ctx context.Context, tx pgx.Tx, leadID string) error {
	f.deleted = append(f.deleted, leadID)
	return nil
}

type fakeLedger struct {
	claims   int
	claimErr error
	flagSet  bool
	flagErr  error
}

func (f *fakeLedger) InsertClaim(ctx context.Context, tx pgx.Tx, phoneHash, userID string) error {
	f.claims++
	if phoneHash == "" {
		return promo.ErrEmptyHash
	}
	return f.claimErr
}

func (f *fakeLedger) MarkUserClaimed(ctx context.Context, tx pgx.Tx, userID string) error {
	if f.flagErr != nil {
		return f.flagErr
	}
	f.flagSet = true
	return nil
}

type fakeRecruits struct {
	created []recruit.CreateParams
	err     error
}

func (f *fakeRecruits) Create(ctx context.Context, tx pgx.Tx, params recruit.CreateParams) (recruit.Recruit, error) {
	if f.err != nil {
		return recruit.Recruit{}, f.err
	}
	f.created = append(f.created, params)
	return recruit.Recruit{ID: fmt.Sprintf("recruit-%d", len(f.created)), PurchaseID: params.PurchaseID}, nil
}

type fakeStore struct {
	inserted  []Purchase
	pending   []Purchase
	delivered []string
	failed    []string
	eventErr  error
	events    []string
}

func (f *fakeStore) InsertDelivered(ctx context.Context, tx pgx.Tx, buyerID string, typ Type, amountCents int64, poolLeadID string) (Purchase, error) {
	p := Purchase{
		ID:          fmt.Sprintf("purchase-%d", len(f.inserted)+1),
		BuyerID:     buyerID,
		Type:        typ,
		AmountCents: amountCents,
		Status:      StatusDelivered,
		PoolLeadID:  &poolLeadID,
	}
	f.inserted = append(f.inserted, p)
	return p, nil
}

func (f *fakeStore) InsertPending(ctx context.Context, tx pgx.Tx, buyerID string, typ Type, amountCents int64, poolLeadID, providerRef string) (Purchase, error) {
	p := Purchase{
		ID:          fmt.Sprintf("pending-%d", len(f.pending)+1),
		BuyerID:     buyerID,
		Type:        typ,
		AmountCents: amountCents,
		Status:      StatusPending,
		PoolLeadID:  &poolLeadID,
		ProviderRef: providerRef,
	}
	f.pending = append(f.pending, p)
	return p, nil
}

func (f *fakeStore) MarkDelivered(ctx context.Context, tx pgx.Tx, purchaseID string) error {
	f.delivered = append(f.delivered, purchaseID)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, tx pgx.Tx, purchaseID string) error {
	f.failed = append(f.failed, purchaseID)
	return nil
}

func (f *fakeStore) ListByBuyer(ctx context.Context, buyerID string) ([]Purchase, error) {
	out := make([]Purchase, 0, len(f.inserted))
	for _, p := range f.inserted {
		if p.BuyerID == buyerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) PendingByProviderRef(ctx context.Context, tx pgx.Tx, providerRef string) ([]Purchase, error) {
	out := make([]Purchase, 0, len(f.pending))
	for _, p := range f.pending {
		if p.ProviderRef == providerRef && p.Status == StatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertWebhookEvent(ctx context.Context, tx pgx.Tx, eventID, source string) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, eventID)
	return nil
}

type fakePool struct {
	txs []*fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
