package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals no dispute visible to the caller.
	ErrNotFound = errors.New("dispute: not found")
	// ErrPendingExists signals the recruit already carries an open dispute.
	ErrPendingExists = errors.New("dispute: pending dispute already exists")
	// ErrAlreadyResolved signals a second resolution attempt.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
)

const disputeColumns = `id, recruit_id, agent_id, reason::text, explanation, status::text,
	admin_notes, resolution_action::text, resolved_by, resolved_at, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// File opens a dispute for a recruit the agent owns. Ownership is enforced by
// the INSERT ... SELECT join: filing against an absent recruit or someone
// else's inserts nothing and reports ErrNotFound, without revealing which.
// The partial unique index turns a second open dispute into a 23505. The
// audit entry is written in the same transaction.
func (r *Repository) File(ctx context.Context, agentID, recruitID string, reason Reason, explanation string) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin file: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO disputes (recruit_id, agent_id, reason, explanation)
		SELECT rec.id, rec.agent_id, $3, $4
		FROM recruits rec
		WHERE rec.id = $1 AND rec.agent_id = $2
		RETURNING ` + disputeColumns

	rec, err := scanRecord(tx.QueryRow(ctx, query, recruitID, agentID, reason, explanation))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrPendingExists
		}
		return Record{}, fmt.Errorf("dispute: file: %w", err)
	}

	details, _ := json.Marshal(map[string]any{
		"reason":      rec.Reason,
		"explanation": rec.Explanation,
	})
	if err := appendLog(ctx, tx, rec.ID, "created", &agentID, details); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit file: %w", err)
	}
	return rec, nil
}

// Resolve settles a pending dispute. The status guard in the WHERE clause
// makes the operation atomic: of two racing resolutions exactly one updates
// the row. On no rows, a follow-up read tells a missing dispute apart from an
// already-settled one.
func (r *Repository) Resolve(ctx context.Context, adminID, disputeID string, status Status, adminNotes string, action *ResolutionAction) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin resolve: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE disputes
		SET status = $2,
		    admin_notes = $3,
		    resolution_action = $4,
		    resolved_by = $5,
		    resolved_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'pending_review'
		RETURNING ` + disputeColumns

	rec, err := scanRecord(tx.QueryRow(ctx, query, disputeID, status, adminNotes, action, adminID))
	if err == nil {
		details, _ := json.Marshal(map[string]any{
			"admin_notes":       rec.AdminNotes,
			"resolution_action": rec.ResolutionAction,
		})
		if err := appendLog(ctx, tx, rec.ID, string(status), &adminID, details); err != nil {
			return Record{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Record{}, fmt.Errorf("dispute: commit resolve: %w", err)
		}
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	var current Status
	if err := tx.QueryRow(ctx,
		`SELECT status::text FROM disputes WHERE id = $1`, disputeID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: resolve fetch: %w", err)
	}
	return Record{}, ErrAlreadyResolved
}

// ListForAgent returns the agent's disputes, newest first.
func (r *Repository) ListForAgent(ctx context.Context, agentID string) ([]Record, error) {
	query := `SELECT ` + disputeColumns + `
		FROM disputes
		WHERE agent_id = $1
		ORDER BY created_at DESC`
	return r.list(ctx, query, agentID)
}

// ListAll returns every dispute, optionally filtered by status. Admin only;
// the capability check lives at the HTTP layer.
func (r *Repository) ListAll(ctx context.Context, status Status) ([]Record, error) {
	if status != "" {
		query := `SELECT ` + disputeColumns + `
			FROM disputes
			WHERE status = $1
			ORDER BY created_at DESC`
		return r.list(ctx, query, status)
	}
	query := `SELECT ` + disputeColumns + `
		FROM disputes
		ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// Logs returns the dispute's audit trail in insertion order.
func (r *Repository) Logs(ctx context.Context, disputeID string) ([]Log, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, dispute_id, action, actor_id, details, created_at
		FROM dispute_logs
		WHERE dispute_id = $1
		ORDER BY id
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute: logs: %w", err)
	}
	defer rows.Close()

	out := make([]Log, 0, 4)
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.DisputeID, &l.Action, &l.ActorID, &l.Details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate logs: %w", err)
	}
	return out, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func appendLog(ctx context.Context, tx pgx.Tx, disputeID, action string, actorID *string, details []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO dispute_logs (dispute_id, action, actor_id, details)
		VALUES ($1, $2, $3, $4)
	`, disputeID, action, actorID, details)
	if err != nil {
		return fmt.Errorf("dispute: append log: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.RecruitID,
		&rec.AgentID,
		&rec.Reason,
		&rec.Explanation,
		&rec.Status,
		&rec.AdminNotes,
		&rec.ResolutionAction,
		&rec.ResolvedBy,
		&rec.ResolvedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
