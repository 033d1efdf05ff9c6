package purchase

import (
	"context"
	"errors"
	"fmt"

	"agentsurge/pool"
	"agentsurge/recruit"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ErrUnknownProviderRef signals a webhook for a payment reference with no
// pending purchases.
var ErrUnknownProviderRef = errors.New("purchase: unknown provider reference")

// CheckoutResult summarizes a started asynchronous purchase.
type CheckoutResult struct {
	PurchaseIDs []string
	TotalCents  int64
	ProviderRef string
}

// StartCheckout reserves inventory and records pending purchases tied to the
// payment provider's reference. The units stay off the market until the
// provider's webhook settles them one way or the other. Standard pricing only:
// the free-first promotion applies to synchronous purchases.
func (s *Service) StartCheckout(ctx context.Context, userID string, typ Type, quantity int, providerRef string) (CheckoutResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !user.CanPurchase() {
		return CheckoutResult{}, ErrSubscriptionRequired
	}
	if !RequestableType(typ) {
		return CheckoutResult{}, ErrInvalidType
	}
	if quantity < 1 || quantity > s.maxQuantity {
		return CheckoutResult{}, ErrInvalidQuantity
	}
	if providerRef == "" {
		return CheckoutResult{}, fmt.Errorf("purchase: empty provider reference")
	}

	licensed := typ == TypeLicensed
	available, err := s.inv.CountAvailableByType(ctx, licensed)
	if err != nil {
		return CheckoutResult{}, err
	}
	if available < quantity {
		return CheckoutResult{}, &InsufficientInventoryError{Requested: quantity, Available: available}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("purchase: begin checkout: %w", err)
	}
	defer tx.Rollback(ctx)

	amount := s.pricing.For(typ)
	result := CheckoutResult{
		PurchaseIDs: make([]string, 0, quantity),
		ProviderRef: providerRef,
	}

	for i := 0; i < quantity; i++ {
		lead, err := s.inv.ClaimNext(ctx, tx, licensed, userID)
		if err != nil {
			if errors.Is(err, pool.ErrPoolExhausted) {
				return CheckoutResult{}, &InsufficientInventoryError{Requested: quantity, Available: i}
			}
			return CheckoutResult{}, err
		}
		p, err := s.store.InsertPending(ctx, tx, userID, typ, amount, lead.ID, providerRef)
		if err != nil {
			return CheckoutResult{}, err
		}
		result.PurchaseIDs = append(result.PurchaseIDs, p.ID)
		result.TotalCents += p.AmountCents
	}

	if err := tx.Commit(ctx); err != nil {
		return CheckoutResult{}, fmt.Errorf("purchase: commit checkout: %w", err)
	}
	return result, nil
}

// HandlePaymentWebhook settles the pending purchases of one payment batch.
// The event id insert doubles as the replay guard: a duplicate event rolls
// the transaction back and reports success, because the first delivery
// already did the work.
func (s *Service) HandlePaymentWebhook(ctx context.Context, log zerolog.Logger, eventID, providerRef string, succeeded bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("purchase: begin webhook: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.store.InsertWebhookEvent(ctx, tx, eventID, "payment"); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			log.Info().Str("event_id", eventID).Msg("payment webhook replay ignored")
			return nil
		}
		return err
	}

	pending, err := s.store.PendingByProviderRef(ctx, tx, providerRef)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return ErrUnknownProviderRef
	}

	if succeeded {
		for _, p := range pending {
			if err := s.settlePurchase(ctx, tx, p); err != nil {
				return err
			}
		}
	} else {
		leadIDs := make([]string, 0, len(pending))
		for _, p := range pending {
			if p.PoolLeadID != nil {
				leadIDs = append(leadIDs, *p.PoolLeadID)
			}
			if err := s.store.MarkFailed(ctx, tx, p.ID); err != nil {
				return err
			}
		}
		if err := s.inv.Release(ctx, tx, leadIDs, pending[0].BuyerID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("purchase: commit webhook: %w", err)
	}

	log.Info().
		Str("event_id", eventID).
		Str("provider_ref", providerRef).
		Bool("succeeded", succeeded).
		Int("purchases", len(pending)).
		Msg("payment webhook settled")
	return nil
}

// settlePurchase converts one pending purchase into a delivered recruit. The
// reserved row is the normal case; if the TTL sweeper returned it to the
// market in the meantime, an equivalent lead is claimed instead.
func (s *Service) settlePurchase(ctx context.Context, tx pgx.Tx, p Purchase) error {
	var lead pool.Lead
	var err error

	if p.PoolLeadID != nil {
		lead, err = s.inv.GetReservedForUpdate(ctx, tx, *p.PoolLeadID, p.BuyerID)
	} else {
		err = pool.ErrNotReserved
	}
	if errors.Is(err, pool.ErrNotReserved) {
		lead, err = s.inv.ClaimNext(ctx, tx, p.Type == TypeLicensed, p.BuyerID)
	}
	if err != nil {
		return fmt.Errorf("purchase: settle %s: %w", p.ID, err)
	}

	if _, err := s.recruits.Create(ctx, tx, recruit.CreateParams{
		AgentID:       p.BuyerID,
		PurchaseID:    p.ID,
		FullName:      lead.FullName,
		Phone:         lead.Phone,
		Email:         lead.Email,
		SocialHandle:  lead.SocialHandle,
		Licensed:      lead.Licensed,
		StampLicensed: p.Type == TypeLicensed,
	}); err != nil {
		return err
	}
	if err := s.inv.Delete(ctx, tx, lead.ID); err != nil {
		return err
	}
	return s.store.MarkDelivered(ctx, tx, p.ID)
}
