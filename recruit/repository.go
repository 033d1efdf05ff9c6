package recruit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound covers both absent recruits and recruits owned by someone else;
// callers cannot tell the difference.
var ErrNotFound = errors.New("recruit: not found")

const recruitColumns = `id, agent_id, purchase_id, full_name, phone, email, social_handle,
	licensed, licensed_at, status, notes, created_at, updated_at`

// CreateParams enumerates the fields stamped onto a recruit at delivery time.
type CreateParams struct {
	AgentID       string
	PurchaseID    string
	FullName      string
	Phone         string
	Email         string
	SocialHandle  string
	Licensed      bool
	StampLicensed bool
}

// Repository handles recruit persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the delivered recruit inside the caller's transaction so the
// purchase, the recruit, and the pool-row removal commit together.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, params CreateParams) (Recruit, error) {
	query := `
		INSERT INTO recruits (agent_id, purchase_id, full_name, phone, email, social_handle, licensed, licensed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $8 THEN now() END)
		RETURNING ` + recruitColumns

	rec, err := scanRecruit(tx.QueryRow(ctx, query,
		params.AgentID,
		params.PurchaseID,
		params.FullName,
		params.Phone,
		params.Email,
		params.SocialHandle,
		params.Licensed,
		params.StampLicensed,
	))
	if err != nil {
		return Recruit{}, fmt.Errorf("recruit: create: %w", err)
	}
	return rec, nil
}

// ListByOwner returns the agent's recruits, newest first.
func (r *Repository) ListByOwner(ctx context.Context, agentID string) ([]Recruit, error) {
	query := `SELECT ` + recruitColumns + `
		FROM recruits
		WHERE agent_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("recruit: list: %w", err)
	}
	defer rows.Close()

	out := make([]Recruit, 0, 8)
	for rows.Next() {
		rec, err := scanRecruit(rows)
		if err != nil {
			return nil, fmt.Errorf("recruit: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recruit: iterate: %w", err)
	}
	return out, nil
}

// Get fetches one recruit scoped to its owner.
func (r *Repository) Get(ctx context.Context, recruitID, agentID string) (Recruit, error) {
	query := `SELECT ` + recruitColumns + `
		FROM recruits
		WHERE id = $1 AND agent_id = $2`

	rec, err := scanRecruit(r.pool.QueryRow(ctx, query, recruitID, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recruit{}, ErrNotFound
		}
		return Recruit{}, fmt.Errorf("recruit: get: %w", err)
	}
	return rec, nil
}

// UpdateStatus moves the recruit along the pipeline. Ownership lives in the
// WHERE clause so a foreign recruit behaves exactly like a missing one.
func (r *Repository) UpdateStatus(ctx context.Context, recruitID, agentID string, status Status) (Recruit, error) {
	query := `
		UPDATE recruits
		SET status = $3, updated_at = now()
		WHERE id = $1 AND agent_id = $2
		RETURNING ` + recruitColumns

	rec, err := scanRecruit(r.pool.QueryRow(ctx, query, recruitID, agentID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recruit{}, ErrNotFound
		}
		return Recruit{}, fmt.Errorf("recruit: update status: %w", err)
	}
	return rec, nil
}

// UpdateNotes replaces the agent's free-text notes.
func (r *Repository) UpdateNotes(ctx context.Context, recruitID, agentID, notes string) (Recruit, error) {
	query := `
		UPDATE recruits
		SET notes = $3, updated_at = now()
		WHERE id = $1 AND agent_id = $2
		RETURNING ` + recruitColumns

	rec, err := scanRecruit(r.pool.QueryRow(ctx, query, recruitID, agentID, notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recruit{}, ErrNotFound
		}
		return Recruit{}, fmt.Errorf("recruit: update notes: %w", err)
	}
	return rec, nil
}

func scanRecruit(row pgx.Row) (Recruit, error) {
	var rec Recruit
	err := row.Scan(
		&rec.ID,
		&rec.AgentID,
		&rec.PurchaseID,
		&rec.FullName,
		&rec.Phone,
		&rec.Email,
		&rec.SocialHandle,
		&rec.Licensed,
		&rec.LicensedAt,
		&rec.Status,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Recruit{}, err
	}
	return rec, nil
}
