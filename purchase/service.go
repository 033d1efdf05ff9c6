package purchase

import (
	"context"
	"errors"
	"fmt"

	"agentsurge/auth"
	"agentsurge/pool"
	"agentsurge/promo"
	"agentsurge/recruit"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrInvalidType signals a purchase type outside {unlicensed, licensed}.
	ErrInvalidType = errors.New("purchase: invalid type")
	// ErrInvalidQuantity signals a quantity outside the configured bounds.
	ErrInvalidQuantity = errors.New("purchase: invalid quantity")
	// ErrSubscriptionRequired signals the buyer's subscription does not admit
	// purchases.
	ErrSubscriptionRequired = errors.New("purchase: active subscription required")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Inventory is the slice of the pool repository the orchestrator needs. The
// external sourcing system sits behind this boundary; retry policy, if one is
// ever added, belongs on the implementation side.
type Inventory interface {
	CountAvailableByType(ctx context.Context, licensed bool) (int, error)
	ClaimNext(ctx context.Context, tx pgx.Tx, licensed bool, buyerID string) (pool.Lead, error)
	GetReservedForUpdate(ctx context.Context, tx pgx.Tx, leadID, buyerID string) (pool.Lead, error)
	Release(ctx context.Context, tx pgx.Tx, leadIDs []string, buyerID string) error
	Delete(ctx context.Context, tx pgx.Tx, leadID string) error
}

// Ledger is the free-claim ledger interface.
type Ledger interface {
	InsertClaim(ctx context.Context, tx pgx.Tx, phoneHash, userID string) error
	MarkUserClaimed(ctx context.Context, tx pgx.Tx, userID string) error
}

// UserReader resolves buyers.
type UserReader interface {
	GetUserByID(ctx context.Context, userID string) (auth.User, error)
}

// RecruitWriter creates the delivered recruit row.
type RecruitWriter interface {
	Create(ctx context.Context, tx pgx.Tx, params recruit.CreateParams) (recruit.Recruit, error)
}

// Store is the purchase repository interface used by the orchestrator.
type Store interface {
	InsertDelivered(ctx context.Context, tx pgx.Tx, buyerID string, typ Type, amountCents int64, poolLeadID string) (Purchase, error)
	InsertPending(ctx context.Context, tx pgx.Tx, buyerID string, typ Type, amountCents int64, poolLeadID, providerRef string) (Purchase, error)
	MarkDelivered(ctx context.Context, tx pgx.Tx, purchaseID string) error
	MarkFailed(ctx context.Context, tx pgx.Tx, purchaseID string) error
	ListByBuyer(ctx context.Context, buyerID string) ([]Purchase, error)
	PendingByProviderRef(ctx context.Context, tx pgx.Tx, providerRef string) ([]Purchase, error)
	InsertWebhookEvent(ctx context.Context, tx pgx.Tx, eventID, source string) error
}

// Service is the purchase orchestrator: it matches a buyer's payment to
// inventory, delivers exclusively and atomically per unit, and applies the
// free-first promotion at most once per account and per phone number.
type Service struct {
	pool     TxBeginner
	users    UserReader
	inv      Inventory
	ledger   Ledger
	recruits RecruitWriter
	store    Store

	pricing     Pricing
	maxQuantity int
}

func NewService(txb TxBeginner, users UserReader, inv Inventory, ledger Ledger, recruits RecruitWriter, store Store, pricing Pricing, maxQuantity int) *Service {
	if maxQuantity <= 0 {
		maxQuantity = 10
	}
	return &Service{
		pool:        txb,
		users:       users,
		inv:         inv,
		ledger:      ledger,
		recruits:    recruits,
		store:       store,
		pricing:     pricing,
		maxQuantity: maxQuantity,
	}
}

// Buy synchronously delivers quantity recruits of the requested type to the
// user. Each unit commits in its own transaction; the inventory shortfall
// check runs before any write so a failed request creates nothing. A failure
// mid-loop leaves earlier units delivered.
func (s *Service) Buy(ctx context.Context, userID string, typ Type, quantity int) (BuyResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return BuyResult{}, err
	}
	if !user.CanPurchase() {
		return BuyResult{}, ErrSubscriptionRequired
	}

	if !RequestableType(typ) {
		return BuyResult{}, ErrInvalidType
	}
	if quantity < 1 || quantity > s.maxQuantity {
		return BuyResult{}, ErrInvalidQuantity
	}

	licensed := typ == TypeLicensed
	available, err := s.inv.CountAvailableByType(ctx, licensed)
	if err != nil {
		return BuyResult{}, err
	}
	if available < quantity {
		return BuyResult{}, &InsufficientInventoryError{Requested: quantity, Available: available}
	}

	result := BuyResult{PurchaseIDs: make([]string, 0, quantity)}
	eligible := !user.FreeRecruitClaimed

	for i := 0; i < quantity; i++ {
		wantFree := eligible && !result.FreeRecruitApplied
		p, free, err := s.deliverUnit(ctx, user.ID, typ, licensed, wantFree)
		if err != nil {
			return BuyResult{}, fmt.Errorf("purchase: unit %d of %d: %w", i+1, quantity, err)
		}
		result.PurchaseIDs = append(result.PurchaseIDs, p.ID)
		result.TotalCents += p.AmountCents
		if free {
			result.FreeRecruitApplied = true
		}
	}

	return result, nil
}

// deliverUnit claims one lead and converts it into a delivered purchase plus
// recruit, all inside one transaction. When the free attempt loses the
// per-user race the transaction is rolled back and the unit retried as paid.
func (s *Service) deliverUnit(ctx context.Context, userID string, typ Type, licensed, wantFree bool) (Purchase, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Purchase{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lead, err := s.inv.ClaimNext(ctx, tx, licensed, userID)
	if err != nil {
		return Purchase{}, false, err
	}

	free := false
	if wantFree {
		// The phone-hash check is per lead, not per request: whether this
		// particular number was ever freed can only be known once the lead is
		// in hand.
		switch err := s.ledger.InsertClaim(ctx, tx, promo.HashPhone(lead.Phone), userID); {
		case err == nil:
			if err := s.ledger.MarkUserClaimed(ctx, tx, userID); err != nil {
				if errors.Is(err, promo.ErrFlagAlreadySet) {
					// A concurrent purchase consumed the eligibility. Drop the
					// uncommitted claim row with the rollback and redo as paid.
					tx.Rollback(ctx)
					return s.deliverUnit(ctx, userID, typ, licensed, false)
				}
				return Purchase{}, false, err
			}
			free = true
		case errors.Is(err, promo.ErrAlreadyClaimed), errors.Is(err, promo.ErrEmptyHash):
			// Paid pricing; the number was freed before (possibly under a
			// different account) or is unhashable.
		default:
			return Purchase{}, false, err
		}
	}

	ptype := typ
	amount := s.pricing.For(typ)
	if free {
		ptype = TypeFreeFirst
		amount = 0
	}

	p, err := s.store.InsertDelivered(ctx, tx, userID, ptype, amount, lead.ID)
	if err != nil {
		return Purchase{}, false, err
	}

	if _, err := s.recruits.Create(ctx, tx, recruit.CreateParams{
		AgentID:       userID,
		PurchaseID:    p.ID,
		FullName:      lead.FullName,
		Phone:         lead.Phone,
		Email:         lead.Email,
		SocialHandle:  lead.SocialHandle,
		Licensed:      lead.Licensed,
		StampLicensed: licensed,
	}); err != nil {
		return Purchase{}, false, err
	}

	if err := s.inv.Delete(ctx, tx, lead.ID); err != nil {
		return Purchase{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Purchase{}, false, fmt.Errorf("commit unit: %w", err)
	}

	return p, free, nil
}

// History returns the buyer's purchase history.
func (s *Service) History(ctx context.Context, userID string) ([]Purchase, error) {
	return s.store.ListByBuyer(ctx, userID)
}
