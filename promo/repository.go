package promo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrAlreadyClaimed signals the phone number was already given away for
	// free, under any account.
	ErrAlreadyClaimed = errors.New("promo: phone already claimed")
	// ErrFlagAlreadySet signals the user's one-time eligibility was consumed,
	// possibly by a concurrent purchase.
	ErrFlagAlreadySet = errors.New("promo: free recruit already claimed by user")
	// ErrEmptyHash signals a lead whose phone number has no digits.
	ErrEmptyHash = errors.New("promo: empty phone hash")
)

// Repository is the Free-Claim Ledger: one immutable row per phone number
// ever given away for free. Rows are never updated or deleted.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// InsertClaim reserves the phone hash inside the caller's transaction. The
// primary key on phone_hash makes the insert the uniqueness check; ON
// CONFLICT DO NOTHING keeps a lost race from aborting the transaction, so the
// caller can fall back to paid pricing without starting over.
func (r *Repository) InsertClaim(ctx context.Context, tx pgx.Tx, phoneHash, userID string) error {
	if phoneHash == "" {
		return ErrEmptyHash
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO free_recruit_claims (phone_hash, claimed_by)
		VALUES ($1, $2)
		ON CONFLICT (phone_hash) DO NOTHING
	`, phoneHash, userID)
	if err != nil {
		return fmt.Errorf("promo: insert claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// HasClaim reports whether the hash is already in the ledger.
func (r *Repository) HasClaim(ctx context.Context, q Querier, phoneHash string) (bool, error) {
	if phoneHash == "" {
		return false, ErrEmptyHash
	}

	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM free_recruit_claims WHERE phone_hash = $1)`,
		phoneHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("promo: has claim: %w", err)
	}
	return exists, nil
}

// MarkUserClaimed flips the account's one-time flag. The conditional update is
// the guard: zero rows affected means the flag was already true.
func (r *Repository) MarkUserClaimed(ctx context.Context, tx pgx.Tx, userID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET free_recruit_claimed = true,
		    free_recruit_claimed_at = now(),
		    updated_at = now()
		WHERE id = $1 AND NOT free_recruit_claimed
	`, userID)
	if err != nil {
		return fmt.Errorf("promo: mark user claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagAlreadySet
	}
	return nil
}

// Querier is the subset of pgx query execution shared by pools and
// transactions.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
