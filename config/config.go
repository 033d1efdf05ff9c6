package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime knob the API server needs. Values come from the
// environment, optionally seeded from a .env file in development.
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// IngestToken protects the inventory ingestion endpoints.
	IngestToken string
	// PaymentWebhookSecret / BillingWebhookSecret sign inbound provider events.
	PaymentWebhookSecret string
	BillingWebhookSecret string

	// Unit prices in cents.
	PriceUnlicensedCents int64
	PriceLicensedCents   int64

	// PurchaseMaxQuantity caps a single synchronous purchase request. Policy,
	// not a technical limit.
	PurchaseMaxQuantity int

	// ReservationTTL bounds how long a pool row may stay reserved while a
	// payment intent is outstanding.
	ReservationTTL time.Duration
}

// Load reads configuration from the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:                  get("APP_ENV", "dev"),
		Port:                 get("PORT", "8080"),
		DatabaseURL:          must("DATABASE_URL"),
		JWTSecret:            must("JWT_SECRET"),
		IngestToken:          get("INGEST_TOKEN", ""),
		PaymentWebhookSecret: get("PAYMENT_WEBHOOK_SECRET", ""),
		BillingWebhookSecret: get("BILLING_WEBHOOK_SECRET", ""),
		PriceUnlicensedCents: getInt64("PRICE_UNLICENSED_CENTS", 3500),
		PriceLicensedCents:   getInt64("PRICE_LICENSED_CENTS", 6000),
		PurchaseMaxQuantity:  getInt("PURCHASE_MAX_QUANTITY", 10),
		ReservationTTL:       time.Duration(getInt("RESERVATION_TTL_MINUTES", 30)) * time.Minute,
	}
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env: %s", k)
	}
	return v
}

func getInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid integer for %s: %q", k, v)
	}
	return n
}

func getInt64(k string, def int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid integer for %s: %q", k, v)
	}
	return n
}
