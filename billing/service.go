// Package billing keeps users.subscription_status in sync with the payment
// provider's subscription webhooks.
package billing

import (
	"context"
	"errors"
	"fmt"

	"agentsurge/auth"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidStatus signals an unknown subscription status in the event.
	ErrInvalidStatus = errors.New("billing: invalid subscription status")
	// ErrUserNotFound signals an event for a user we do not have.
	ErrUserNotFound = errors.New("billing: user not found")
)

// SubscriptionEvent is the provider's notification of a subscription change.
type SubscriptionEvent struct {
	EventID string
	UserID  string
	Status  auth.SubscriptionStatus
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// HandleSubscriptionWebhook applies one subscription event. The event id
// insert is the replay guard: a duplicate rolls the transaction back and
// reports success, since the first delivery already applied the change.
func (s *Service) HandleSubscriptionWebhook(ctx context.Context, log zerolog.Logger, ev SubscriptionEvent) error {
	if ev.EventID == "" {
		return fmt.Errorf("billing: empty event id")
	}
	if !auth.ValidSubscriptionStatus(ev.Status) {
		return ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("billing: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO webhook_events (event_id, source) VALUES ($1, 'billing')`, ev.EventID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Info().Str("event_id", ev.EventID).Msg("billing webhook replay ignored")
			return nil
		}
		return fmt.Errorf("billing: insert event: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET subscription_status = $2, updated_at = now()
		WHERE id = $1
	`, ev.UserID, ev.Status)
	if err != nil {
		return fmt.Errorf("billing: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("billing: commit: %w", err)
	}

	log.Info().
		Str("event_id", ev.EventID).
		Str("user_id", ev.UserID).
		Str("status", string(ev.Status)).
		Msg("subscription status updated")
	return nil
}
