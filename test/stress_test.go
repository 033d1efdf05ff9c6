package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"agentsurge/auth"
	"agentsurge/dispute"
	"agentsurge/pool"
	"agentsurge/promo"
	"agentsurge/purchase"
	"agentsurge/recruit"
	"agentsurge/test/actors"
	"agentsurge/test/chaos"
	"agentsurge/test/infra"
	"agentsurge/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent buyers")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestAgentSurgeConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	dbPool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer dbPool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, dbPool)

	poolRepo := pool.NewRepository(dbPool)
	purchaseSvc := purchase.NewService(
		dbPool,
		userReader{dbPool},
		poolRepo,
		promo.NewRepository(),
		recruit.NewRepository(dbPool),
		purchase.NewRepository(dbPool),
		purchase.Pricing{UnlicensedCents: 3500, LicensedCents: 6000},
		10,
	)
	disputeSvc := dispute.NewService(dispute.NewRepository(dbPool))

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// buyers racing over a pool seeded with shared phone numbers
	for i := 0; i < *flConcurrency; i++ {
		agentID := seedData.agentIDs[i%len(seedData.agentIDs)]
		g.Go(func() error { return actors.Buyer(ctx2, purchaseSvc, agentID, stop) })
	}
	// async checkout with duplicate webhook delivery
	g.Go(func() error {
		return actors.WebhookDeliverer(ctx2, purchaseSvc, seedData.agentIDs[0], stop)
	})
	// disputes: file, conflict, resolve, double-resolve
	for _, agentID := range seedData.agentIDs[:2] {
		agentID := agentID
		g.Go(func() error { return actors.Disputer(ctx2, dbPool, disputeSvc, agentID, stop) })
	}
	g.Go(func() error { return actors.Resolver(ctx2, dbPool, disputeSvc, seedData.adminID, stop) })
	// keep inventory flowing, reusing phone numbers across batches
	g.Go(func() error { return actors.Ingestor(ctx2, poolRepo, seedData.sharedPhones, stop) })
	// chaos: kill random backends
	go chaos.TerminateRandomBackend(ctx2, dbPool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, dbPool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, dbPool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	adminID      string
	agentIDs     []string
	sharedPhones []string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs

	if err := pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name, password_hash, role, subscription_status)
		VALUES ($1, 'Stress Admin', 'x', 'admin', 'active') RETURNING id`,
		fmt.Sprintf("admin%d@example.com", rand.Int63())).Scan(&s.adminID); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	for i := 0; i < 4; i++ {
		var id string
		if err := pool.QueryRow(ctx, `
			INSERT INTO users (email, full_name, password_hash, role, subscription_status)
			VALUES ($1, $2, 'x', 'agent', 'active') RETURNING id`,
			fmt.Sprintf("agent%d-%d@example.com", i, rand.Int63()),
			fmt.Sprintf("Stress Agent %d", i)).Scan(&id); err != nil {
			t.Fatalf("seed agent %d: %v", i, err)
		}
		s.agentIDs = append(s.agentIDs, id)
	}

	// Some numbers repeat across leads so concurrent free claims collide on
	// the ledger, not just on the user flag.
	for i := 0; i < 6; i++ {
		s.sharedPhones = append(s.sharedPhones, fmt.Sprintf("555010%04d", i))
	}

	for i := 0; i < 60; i++ {
		phone := fmt.Sprintf("555%07d", rand.Intn(10000000))
		if i%3 == 0 {
			phone = s.sharedPhones[i%len(s.sharedPhones)]
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO recruit_pool (full_name, phone, licensed, source_sheet, source_row)
			VALUES ($1, $2, $3, 'seed', $4)`,
			fmt.Sprintf("Seed Lead %d", i), phone, i%4 == 0, i); err != nil {
			t.Fatalf("seed lead %d: %v", i, err)
		}
	}

	return s
}

// userReader adapts raw SQL user lookup for the purchase service; the stress
// test has no need for the full auth repository.
type userReader struct {
	pool *pgxpool.Pool
}

func (u userReader) GetUserByID(ctx context.Context, userID string) (auth.User, error) {
	var usr auth.User
	err := u.pool.QueryRow(ctx, `
		SELECT id, role::text, subscription_status::text, free_recruit_claimed
		FROM users WHERE id = $1`, userID).
		Scan(&usr.ID, &usr.Role, &usr.SubscriptionStatus, &usr.FreeRecruitClaimed)
	if err != nil {
		return auth.User{}, fmt.Errorf("stress user lookup: %w", err)
	}
	return usr, nil
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"recruit_purchases", `SELECT id, buyer_id, type, amount_cents, status, created_at FROM recruit_purchases ORDER BY created_at DESC LIMIT 50`},
		{"free_recruit_claims", `SELECT phone_hash, claimed_by, created_at FROM free_recruit_claims ORDER BY created_at DESC LIMIT 50`},
		{"disputes", `SELECT id, recruit_id, status, resolution_action, created_at FROM disputes ORDER BY created_at DESC LIMIT 50`},
		{"dispute_logs", `SELECT id, dispute_id, action, created_at FROM dispute_logs ORDER BY id DESC LIMIT 50`},
		{"recruit_pool", `SELECT id, available, reserved_by, reserved_at FROM recruit_pool ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
