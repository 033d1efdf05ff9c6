package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"agentsurge/dispute"
	"agentsurge/pool"
	"agentsurge/purchase"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Buyer hammers the synchronous purchase path. Shortfalls and promo losses
// are expected under contention; anything else is a failure.
func Buyer(ctx context.Context, svc *purchase.Service, userID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		typ := purchase.TypeUnlicensed
		if rand.Intn(4) == 0 {
			typ = purchase.TypeLicensed
		}
		qty := 1 + rand.Intn(3)

		_, err := svc.Buy(ctx, userID, typ, qty)
		if err != nil && !tolerableBuyErr(err) {
			return fmt.Errorf("buyer %s: %w", userID, err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

func tolerableBuyErr(err error) bool {
	var shortfall *purchase.InsufficientInventoryError
	return errors.As(err, &shortfall) ||
		errors.Is(err, pool.ErrPoolExhausted) ||
		tolerableInfraErr(err)
}

// tolerableInfraErr covers shutdown and the chaos actor's backend kills.
func tolerableInfraErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 57P01 admin shutdown, 25P02 tx aborted after a killed backend
		return pgErr.Code == "57P01" || pgErr.Code == "25P02"
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected EOF")
}

// WebhookDeliverer drives the async flow: start a checkout, then deliver the
// payment webhook twice. The second delivery must be a replay no-op.
func WebhookDeliverer(ctx context.Context, svc *purchase.Service, userID string, stop <-chan struct{}) error {
	log := zerolog.Nop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		providerRef := "pi_" + uuid.NewString()
		_, err := svc.StartCheckout(ctx, userID, purchase.TypeUnlicensed, 1+rand.Intn(2), providerRef)
		if err != nil {
			if tolerableBuyErr(err) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("deliverer checkout: %w", err)
		}

		eventID := "evt_" + uuid.NewString()
		succeeded := rand.Intn(5) != 0
		for i := 0; i < 2; i++ {
			if err := svc.HandlePaymentWebhook(ctx, log, eventID, providerRef, succeeded); err != nil {
				if tolerableBuyErr(err) || errors.Is(err, pool.ErrNotReserved) {
					break
				}
				return fmt.Errorf("deliverer webhook: %w", err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Disputer files disputes against the agent's recruits. Conflicts with an
// existing pending dispute are the point of the exercise.
func Disputer(ctx context.Context, db *pgxpool.Pool, svc *dispute.Service, agentID string, stop <-chan struct{}) error {
	reasons := []dispute.Reason{
		dispute.ReasonUnreachable,
		dispute.ReasonWrongNumber,
		dispute.ReasonBadContactInfo,
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var recruitID string
		err := db.QueryRow(ctx,
			`SELECT id FROM recruits WHERE agent_id = $1 ORDER BY random() LIMIT 1`, agentID).Scan(&recruitID)
		if err == nil {
			_, err = svc.File(ctx, agentID, recruitID, reasons[rand.Intn(len(reasons))], "")
			if err != nil &&
				!errors.Is(err, dispute.ErrPendingExists) &&
				!tolerableInfraErr(err) {
				return fmt.Errorf("disputer file: %w", err)
			}
		} else if !errors.Is(err, pgx.ErrNoRows) && !tolerableInfraErr(err) {
			return fmt.Errorf("disputer pick recruit: %w", err)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Resolver resolves pending disputes and immediately tries again. The second
// attempt must come back ErrAlreadyResolved, never a second state change.
func Resolver(ctx context.Context, db *pgxpool.Pool, svc *dispute.Service, adminID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var disputeID string
		err := db.QueryRow(ctx,
			`SELECT id FROM disputes WHERE status = 'pending_review' ORDER BY random() LIMIT 1`).Scan(&disputeID)
		if err == nil {
			status := dispute.StatusApproved
			action := dispute.ResolutionCreditAgent
			if rand.Intn(3) == 0 {
				action = dispute.ResolutionAction("")
			}
			if rand.Intn(2) == 0 {
				status = dispute.StatusDenied
			}
			for i := 0; i < 2; i++ {
				_, err := svc.Resolve(ctx, adminID, disputeID, status, "stress resolution", action)
				if err != nil &&
					!errors.Is(err, dispute.ErrAlreadyResolved) &&
					!errors.Is(err, dispute.ErrNotFound) &&
					!tolerableInfraErr(err) {
					return fmt.Errorf("resolver: %w", err)
				}
			}
		} else if !errors.Is(err, pgx.ErrNoRows) && !tolerableInfraErr(err) {
			return fmt.Errorf("resolver pick dispute: %w", err)
		}
		time.Sleep(time.Duration(80+rand.Intn(120)) * time.Millisecond)
	}
}

// Ingestor tops the pool up so buyers never fully drain it. A slice of the
// phone numbers repeats across batches, so the free-first ledger sees the
// same number sold more than once.
func Ingestor(ctx context.Context, repo *pool.Repository, sharedPhones []string, stop <-chan struct{}) error {
	batch := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		batch++
		inputs := make([]pool.LeadInput, 0, 8)
		for i := 0; i < 8; i++ {
			phone := fmt.Sprintf("555%07d", rand.Intn(10000000))
			if len(sharedPhones) > 0 && rand.Intn(3) == 0 {
				phone = sharedPhones[rand.Intn(len(sharedPhones))]
			}
			inputs = append(inputs, pool.LeadInput{
				FullName:    fmt.Sprintf("Stress Lead %d-%d", batch, i),
				Phone:       phone,
				Licensed:    rand.Intn(4) == 0,
				SourceSheet: "stress",
				SourceRow:   batch*100 + i,
			})
		}

		if _, err := repo.IngestBatch(ctx, inputs); err != nil {
			if tolerableInfraErr(err) {
				continue
			}
			return fmt.Errorf("ingestor: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}
