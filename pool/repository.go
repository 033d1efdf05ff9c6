package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrPoolExhausted signals no available lead of the requested type.
	ErrPoolExhausted = errors.New("pool: no available lead")
	// ErrNotReserved signals a release attempt for rows the buyer does not hold.
	ErrNotReserved = errors.New("pool: lead not reserved by buyer")
)

const leadColumns = `id, full_name, phone, email, social_handle, licensed, available,
	reserved_by, reserved_at, source_sheet, source_row, created_at`

// Repository provides access to the unassigned-lead inventory.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountAvailable returns how many leads are currently for sale per type.
func (r *Repository) CountAvailable(ctx context.Context) (Counts, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE NOT licensed),
			COUNT(*) FILTER (WHERE licensed)
		FROM recruit_pool
		WHERE available
	`

	var c Counts
	if err := r.pool.QueryRow(ctx, query).Scan(&c.Unlicensed, &c.Licensed); err != nil {
		return Counts{}, fmt.Errorf("pool: count available: %w", err)
	}
	return c, nil
}

// CountAvailableByType returns the available count for one lead type.
func (r *Repository) CountAvailableByType(ctx context.Context, licensed bool) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recruit_pool WHERE available AND licensed = $1`, licensed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pool: count by type: %w", err)
	}
	return n, nil
}

// ClaimNext atomically takes the oldest available lead of the requested type
// for the buyer. The claim is a single conditional update so two concurrent
// purchases can never take the same row; SKIP LOCKED keeps contending claims
// from queueing on each other.
func (r *Repository) ClaimNext(ctx context.Context, tx pgx.Tx, licensed bool, buyerID string) (Lead, error) {
	query := `
		UPDATE recruit_pool
		SET available = false,
		    reserved_by = $2,
		    reserved_at = now()
		WHERE id = (
			SELECT id FROM recruit_pool
			WHERE available AND licensed = $1
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + leadColumns

	lead, err := scanLead(tx.QueryRow(ctx, query, licensed, buyerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrPoolExhausted
		}
		return Lead{}, fmt.Errorf("pool: claim next: %w", err)
	}
	return lead, nil
}

// Reserve claims n leads for the buyer inside the caller's transaction. It is
// the entry point of the asynchronous purchase flow: the rows stay off the
// market while the payment intent is outstanding.
func (r *Repository) Reserve(ctx context.Context, tx pgx.Tx, licensed bool, buyerID string, n int) ([]Lead, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pool: reserve count must be positive")
	}

	leads := make([]Lead, 0, n)
	for i := 0; i < n; i++ {
		lead, err := r.ClaimNext(ctx, tx, licensed, buyerID)
		if err != nil {
			if errors.Is(err, ErrPoolExhausted) {
				return nil, fmt.Errorf("pool: reserve %d of %d: %w", i+1, n, ErrPoolExhausted)
			}
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

// Release returns reserved rows to the market. Only rows held by the given
// buyer are touched.
func (r *Repository) Release(ctx context.Context, tx pgx.Tx, leadIDs []string, buyerID string) error {
	if len(leadIDs) == 0 {
		return nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE recruit_pool
		SET available = true,
		    reserved_by = NULL,
		    reserved_at = NULL
		WHERE id = ANY($1) AND reserved_by = $2 AND NOT available
	`, leadIDs, buyerID)
	if err != nil {
		return fmt.Errorf("pool: release: %w", err)
	}
	if int(tag.RowsAffected()) != len(leadIDs) {
		return ErrNotReserved
	}
	return nil
}

// ReleaseExpired frees reservations older than the TTL. Abandoned payment
// intents would otherwise leak inventory permanently.
func (r *Repository) ReleaseExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recruit_pool
		SET available = true,
		    reserved_by = NULL,
		    reserved_at = NULL
		WHERE NOT available
		  AND reserved_at IS NOT NULL
		  AND reserved_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("pool: release expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Delete removes a pool row once it has been converted into a recruit.
func (r *Repository) Delete(ctx context.Context, tx pgx.Tx, leadID string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM recruit_pool WHERE id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("pool: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool: delete: lead %s not found", leadID)
	}
	return nil
}

// GetReservedForUpdate locks and returns one reserved row held by the buyer.
func (r *Repository) GetReservedForUpdate(ctx context.Context, tx pgx.Tx, leadID, buyerID string) (Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM recruit_pool
		WHERE id = $1 AND reserved_by = $2 AND NOT available
		FOR UPDATE`

	lead, err := scanLead(tx.QueryRow(ctx, query, leadID, buyerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotReserved
		}
		return Lead{}, fmt.Errorf("pool: get reserved for update: %w", err)
	}
	return lead, nil
}

// GetReserved fetches the reserved rows a buyer currently holds, oldest first.
func (r *Repository) GetReserved(ctx context.Context, tx pgx.Tx, buyerID string) ([]Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM recruit_pool
		WHERE reserved_by = $1 AND NOT available
		ORDER BY reserved_at, id
		FOR UPDATE`

	rows, err := tx.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("pool: get reserved: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0, 8)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("pool: scan reserved: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pool: iterate reserved: %w", err)
	}
	return leads, nil
}

// IngestBatch inserts sourced leads, skipping rows without a name or phone.
// Returns the number of rows inserted.
func (r *Repository) IngestBatch(ctx context.Context, inputs []LeadInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("pool: begin ingest: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, in := range inputs {
		if in.FullName == "" || in.Phone == "" {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO recruit_pool (full_name, phone, email, social_handle, licensed, source_sheet, source_row)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, in.FullName, in.Phone, in.Email, in.SocialHandle, in.Licensed, in.SourceSheet, in.SourceRow)
		if err != nil {
			return 0, fmt.Errorf("pool: ingest row %d: %w", in.SourceRow, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("pool: commit ingest: %w", err)
	}
	return inserted, nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID,
		&lead.FullName,
		&lead.Phone,
		&lead.Email,
		&lead.SocialHandle,
		&lead.Licensed,
		&lead.Available,
		&lead.ReservedBy,
		&lead.ReservedAt,
		&lead.SourceSheet,
		&lead.SourceRow,
		&lead.CreatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}
