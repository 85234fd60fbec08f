// Command seed-db loads development fixtures: sample deals of both coupon
// types, commission settings, and an API key bound to the sample business.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dealpass/settlement-service/internal/repository"
)

const businessOwner = "pizza@example.com"

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or DEALPASS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or DEALPASS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("DEALPASS_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or DEALPASS_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("DEALPASS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedDeals(ctx, pool); err != nil {
		return errors.Wrap(err, "seed deals")
	}
	if err := seedCommissionSettings(ctx, pool); err != nil {
		return errors.Wrap(err, "seed commission settings")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertDealSQL = `INSERT INTO deals (
	id, title, business_owner, coupon_type,
	original_price, discounted_price, discount_percentage,
	coupon_price, redemption_value, expiry_date, max_uses, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		expiry_date = EXCLUDED.expiry_date,
		active = TRUE`

func seedDeals(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample deals")

	expiry := time.Now().AddDate(0, 1, 0)

	type dealRow struct {
		id, title, couponType        string
		original, discounted         decimal.Decimal
		discountPct                  int
		couponPrice, redemptionValue decimal.Decimal
		maxUses                      int
	}
	deals := []dealRow{
		{
			id:          "deal-pizza-25off",
			title:       "25% off any large pizza",
			couponType:  "percentage_discount",
			original:    decimal.NewFromInt(100),
			discounted:  decimal.NewFromInt(75),
			discountPct: 25,
			maxUses:     100,
		},
		{
			id:              "deal-pizza-value-80",
			title:           "$80 of pizza for $50",
			couponType:      "value_coupon",
			couponPrice:     decimal.NewFromInt(50),
			redemptionValue: decimal.NewFromInt(80),
			maxUses:         50,
		},
	}

	for _, d := range deals {
		_, err := pool.Exec(ctx, upsertDealSQL,
			d.id, d.title, businessOwner, d.couponType,
			d.original, d.discounted, d.discountPct,
			d.couponPrice, d.redemptionValue, expiry, d.maxUses,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert deal %s", d.id)
		}
		slog.Info("upserted deal", slog.String("id", d.id), slog.String("title", d.title))
	}

	return nil
}

const upsertCommissionSQL = `INSERT INTO commission_settings (id, business_owner, commission_rate)
	VALUES ($1, $2, $3)
	ON CONFLICT (COALESCE(business_owner, '')) DO UPDATE SET
		commission_rate = EXCLUDED.commission_rate`

func seedCommissionSettings(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding commission settings")

	settings := []struct {
		id    string
		owner *string
		rate  decimal.Decimal
	}{
		{id: "commission-global", owner: nil, rate: decimal.NewFromFloat(0.15)},
		{id: "commission-pizza", owner: ptr(businessOwner), rate: decimal.NewFromFloat(0.10)},
	}

	for _, s := range settings {
		if _, err := pool.Exec(ctx, upsertCommissionSQL, s.id, s.owner, s.rate); err != nil {
			return errors.Wrapf(err, "upsert commission setting %s", s.id)
		}
		slog.Info("upserted commission setting",
			slog.String("id", s.id), slog.String("rate", s.rate.String()))
	}

	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, owner_email, scopes, active)
	VALUES ($1, $2, $3, $4, $5, TRUE)
	ON CONFLICT (key_hash) DO UPDATE SET
		name = EXCLUDED.name,
		owner_email = EXCLUDED.owner_email,
		scopes = EXCLUDED.scopes,
		active = TRUE`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default business key", businessOwner,
		[]string{"purchase", "redeem", "business"},
	)
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key",
		slog.String("id", "default"), slog.String("owner", businessOwner))
	return nil
}

func ptr(s string) *string { return &s }
