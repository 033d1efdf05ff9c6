package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateEvent signals the provider event was already processed.
	ErrDuplicateEvent = errors.New("purchase: duplicate webhook event")
	// ErrNotFound is returned when no purchase row matches.
	ErrNotFound = errors.New("purchase: not found")
)

const purchaseColumns = `id, buyer_id, type::text, amount_cents, status::text,
	pool_lead_id, provider_ref, delivered_at, created_at`

// Repository persists purchase rows. Writes take an explicit transaction so
// the orchestrator controls the commit granule.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertDelivered records an already-paid, already-fulfilled unit.
func (r *Repository) InsertDelivered(ctx context.Context, tx pgx.Tx, buyerID string, typ Type, amountCents int64, poolLeadID string) (Purchase, error) {
	query := `
		INSERT INTO recruit_purchases (buyer_id, type, amount_cents, status, pool_lead_id, delivered_at)
		VALUES ($1, $2, $3, 'delivered', $4, now())
		RETURNING ` + purchaseColumns

	p, err := scanPurchase(tx.QueryRow(ctx, query, buyerID, typ, amountCents, poolLeadID))
	if err != nil {
		return Purchase{}, fmt.Errorf("purchase: insert delivered: %w", err)
	}
	return p, nil
}

// InsertPending records a unit awaiting payment confirmation, tied to its
// reserved pool row and the provider's payment reference.
func (r *Repository) InsertPending(ctx context.Context, tx pgx.Tx, buyerID string, typ Type, amountCents int64, poolLeadID, providerRef string) (Purchase, error) {
	query := `
		INSERT INTO recruit_purchases (buyer_id, type, amount_cents, status, pool_lead_id, provider_ref)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		RETURNING ` + purchaseColumns

	p, err := scanPurchase(tx.QueryRow(ctx, query, buyerID, typ, amountCents, poolLeadID, providerRef))
	if err != nil {
		return Purchase{}, fmt.Errorf("purchase: insert pending: %w", err)
	}
	return p, nil
}

// MarkDelivered transitions a pending unit. The status guard in the WHERE
// clause makes redelivery a no-op detectable by the caller.
func (r *Repository) MarkDelivered(ctx context.Context, tx pgx.Tx, purchaseID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE recruit_purchases
		SET status = 'delivered', delivered_at = now()
		WHERE id = $1 AND status = 'pending'
	`, purchaseID)
	if err != nil {
		return fmt.Errorf("purchase: mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed transitions a pending unit after a failed payment.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, purchaseID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE recruit_purchases
		SET status = 'failed'
		WHERE id = $1 AND status = 'pending'
	`, purchaseID)
	if err != nil {
		return fmt.Errorf("purchase: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByBuyer returns the buyer's purchase history, newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID string) ([]Purchase, error) {
	query := `SELECT ` + purchaseColumns + `
		FROM recruit_purchases
		WHERE buyer_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("purchase: list: %w", err)
	}
	defer rows.Close()

	out := make([]Purchase, 0, 8)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("purchase: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("purchase: iterate: %w", err)
	}
	return out, nil
}

// PendingByProviderRef locks and returns the pending units of one payment
// batch, oldest first.
func (r *Repository) PendingByProviderRef(ctx context.Context, tx pgx.Tx, providerRef string) ([]Purchase, error) {
	query := `SELECT ` + purchaseColumns + `
		FROM recruit_purchases
		WHERE provider_ref = $1 AND status = 'pending'
		ORDER BY created_at, id
		FOR UPDATE`

	rows, err := tx.Query(ctx, query, providerRef)
	if err != nil {
		return nil, fmt.Errorf("purchase: pending by ref: %w", err)
	}
	defer rows.Close()

	out := make([]Purchase, 0, 4)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("purchase: scan pending: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("purchase: iterate pending: %w", err)
	}
	return out, nil
}

// InsertWebhookEvent attempts to register the provider event id inside the
// active transaction. A 23505 means this event was already handled and the
// whole delivery should be treated as a replay.
func (r *Repository) InsertWebhookEvent(ctx context.Context, tx pgx.Tx, eventID, source string) error {
	if eventID == "" {
		return fmt.Errorf("purchase: empty webhook event id")
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO webhook_events (event_id, source) VALUES ($1, $2)`, eventID, source)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("purchase: insert webhook event: %w", err)
	}
	return nil
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(
		&p.ID,
		&p.BuyerID,
		&p.Type,
		&p.AmountCents,
		&p.Status,
		&p.PoolLeadID,
		&p.ProviderRef,
		&p.DeliveredAt,
		&p.CreatedAt,
	)
	if err != nil {
		return Purchase{}, err
	}
	return p, nil
}
