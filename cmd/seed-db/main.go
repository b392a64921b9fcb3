// Command seed-db loads a demo rule set, a starter cost catalog, and an API
// key into a fresh database.
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
	"github.com/shopspring/decimal"

	"github.com/borhen68/framatale-sub001/internal/domain/auth"
	"github.com/borhen68/framatale-sub001/internal/domain/costplus"
	"github.com/borhen68/framatale-sub001/internal/domain/rule"
	"github.com/borhen68/framatale-sub001/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PRICING_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PRICING_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PRICING_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PRICING_API_KEY_PEPPER")
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

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedRules(ctx, postgres.NewRuleStore(pool)); err != nil {
		return errors.Wrap(err, "seed rules")
	}

	if err := seedCosts(ctx, postgres.NewCostCatalog(pool)); err != nil {
		return errors.Wrap(err, "seed cost catalog")
	}

	if apiKey != "" {
		if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
			return errors.Wrap(err, "seed api key")
		}
	}

	return nil
}

func intPtr(v int) *int { return &v }

func demoRules(now time.Time) []*rule.Rule {
	return []*rule.Rule{
		{
			ID:       "photo-book-base",
			Name:     "Photo book base price",
			Kind:     rule.KindTiered,
			Scope:    rule.ScopeProduct,
			Priority: 100,
			Active:   true,
			Conditions: rule.Conditions{
				ProductTypes: []string{"photo_book"},
			},
			Pricing: rule.TieredSpec{
				Tiers: []rule.Tier{
					{MinQuantity: 1, MaxQuantity: intPtr(4), Price: decimal.RequireFromString("39.99")},
					{MinQuantity: 5, MaxQuantity: intPtr(19), Price: decimal.RequireFromString("34.99")},
					{MinQuantity: 20, Price: decimal.RequireFromString("29.99")},
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:       "canvas-base",
			Name:     "Canvas print base price",
			Kind:     rule.KindFixed,
			Scope:    rule.ScopeProduct,
			Priority: 100,
			Active:   true,
			Conditions: rule.Conditions{
				ProductTypes: []string{"canvas_print"},
			},
			Pricing:   rule.FixedSpec{BasePrice: decimal.RequireFromString("59.99")},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:       "bulk-order-discount",
			Name:     "Bulk order discount",
			Kind:     rule.KindPercentage,
			Priority: 50,
			Active:   true,
			Conditions: rule.Conditions{
				MinQuantity: intPtr(10),
			},
			Discount: &rule.DiscountSpec{
				Type:        rule.DiscountBulk,
				Value:       decimal.NewFromInt(15),
				MaxDiscount: decimal.NewFromInt(30),
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:       "vip-loyalty",
			Name:     "VIP loyalty discount",
			Kind:     rule.KindPercentage,
			Priority: 40,
			Active:   true,
			Conditions: rule.Conditions{
				CustomerTiers: []string{"premium", "vip"},
			},
			Discount: &rule.DiscountSpec{
				Type:              rule.DiscountLoyalty,
				Value:             decimal.NewFromInt(10),
				LoyaltyMultiplier: decimal.NewFromInt(1),
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func seedRules(ctx context.Context, store *postgres.RuleStore) error {
	rules := demoRules(time.Now())
	slog.Info("seeding demo rules", slog.Int("count", len(rules)))

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "validate rule %s", r.ID)
		}
		if err := store.Upsert(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert rule %s", r.ID)
		}
		slog.Info("upserted rule", slog.String("id", r.ID), slog.String("name", r.Name))
	}
	return nil
}

func seedCosts(ctx context.Context, catalog *postgres.CostCatalog) error {
	slog.Info("seeding cost catalog")

	now := time.Now()
	costs := []*costplus.ProductCost{
		{
			ID:          "photo-book-cost",
			ProductType: "photo_book",
			Costs: costplus.Costs{
				BaseCost:           decimal.RequireFromString("8.50"),
				ShippingCost:       decimal.RequireFromString("2.20"),
				HandlingFee:        decimal.RequireFromString("0.80"),
				QualityControlCost: decimal.RequireFromString("0.50"),
				PackagingCost:      decimal.RequireFromString("1.00"),
			},
			VolumeTiers: []costplus.VolumeTier{
				{MinQuantity: 20, MaxQuantity: intPtr(49), UnitCost: decimal.RequireFromString("11.50"), Discount: decimal.NewFromInt(12)},
				{MinQuantity: 50, UnitCost: decimal.RequireFromString("10.40"), Discount: decimal.NewFromInt(20)},
			},
			Targets: costplus.Targets{
				TargetSellingPrice: decimal.RequireFromString("39.99"),
				TargetMargin:       decimal.NewFromInt(65),
				MinimumMargin:      decimal.NewFromInt(40),
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "canvas-cost",
			ProductType: "canvas_print",
			Costs: costplus.Costs{
				BaseCost:           decimal.RequireFromString("14.00"),
				ShippingCost:       decimal.RequireFromString("4.50"),
				HandlingFee:        decimal.RequireFromString("1.20"),
				QualityControlCost: decimal.RequireFromString("0.80"),
				PackagingCost:      decimal.RequireFromString("2.50"),
			},
			Targets: costplus.Targets{
				TargetSellingPrice: decimal.RequireFromString("59.99"),
				TargetMargin:       decimal.NewFromInt(60),
				MinimumMargin:      decimal.NewFromInt(35),
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	for _, c := range costs {
		c.Costs.Recompute()
		if err := catalog.Save(ctx, c); err != nil {
			return errors.Wrapf(err, "save cost %s", c.ID)
		}
		slog.Info("saved cost structure", slog.String("id", c.ID), slog.String("product", c.ProductType))
	}
	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if err := repo.Upsert(ctx, &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: keyHash,
		Name:    "Default ops key",
		Scopes:  []string{"manage_rules"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default ops key"))
	return nil
}
