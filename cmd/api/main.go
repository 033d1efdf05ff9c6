package main

import (
	"context"
	"net/http"
	"time"

	"agentsurge/auth"
	"agentsurge/billing"
	"agentsurge/config"
	"agentsurge/db"
	"agentsurge/dispute"
	"agentsurge/logger"
	"agentsurge/pool"
	"agentsurge/promo"
	"agentsurge/purchase"
	"agentsurge/recruit"

	"github.com/rs/zerolog"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	log := logger.New(cfg.Env)

	dbPool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap database pool")
	}
	defer dbPool.Close()

	authRepo := auth.NewRepository(dbPool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	poolRepo := pool.NewRepository(dbPool)
	promoRepo := promo.NewRepository()
	recruitRepo := recruit.NewRepository(dbPool)
	purchaseRepo := purchase.NewRepository(dbPool)

	pricing := purchase.Pricing{
		UnlicensedCents: cfg.PriceUnlicensedCents,
		LicensedCents:   cfg.PriceLicensedCents,
	}
	purchaseSvc := purchase.NewService(dbPool, authRepo, poolRepo, promoRepo, recruitRepo, purchaseRepo, pricing, cfg.PurchaseMaxQuantity)

	recruitSvc := recruit.NewService(recruitRepo)
	disputeSvc := dispute.NewService(dispute.NewRepository(dbPool))
	billingSvc := billing.NewService(dbPool)

	go sweepReservations(ctx, log, poolRepo, cfg.ReservationTTL)

	server := &Server{
		cfg:             cfg,
		log:             log,
		authService:     authSvc,
		purchaseService: purchaseSvc,
		recruitService:  recruitSvc,
		disputeService:  disputeSvc,
		billingService:  billingSvc,
		inventory:       poolRepo,
	}

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("api listening")
	if err := http.ListenAndServe(addr, server.routes()); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
}

// sweepReservations periodically returns expired reservations to the market.
// Abandoned checkouts would otherwise hold inventory forever.
func sweepReservations(ctx context.Context, log zerolog.Logger, repo *pool.Repository, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := repo.ReleaseExpired(ctx, ttl)
			if err != nil {
				log.Error().Err(err).Msg("release expired reservations")
				continue
			}
			if released > 0 {
				log.Info().Int("released", released).Msg("expired reservations returned to pool")
			}
		}
	}
}
