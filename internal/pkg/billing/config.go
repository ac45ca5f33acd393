package billing

import (
	"errors"
	"time"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

type Config struct {
	Enabled          bool
	HasFreePlan      bool
	HasTrialPlan     bool
	FreePriceID      string
	TrialPriceID     string
	TrialPeriodDays  int
	SecretKey        string
	PublishableKey   string
	WebhookSecret    string
	CatalogSyncEvery time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Enabled:          env.GetEnvBool("SUBSCRIPTION_ENABLE", true),
		HasFreePlan:      env.GetEnvBool("HAS_FREE_PLAN", false),
		HasTrialPlan:     env.GetEnvBool("HAS_TRIAL_PLAN", true),
		FreePriceID:      env.GetEnv("FREE_PRICE_ID", ""),
		TrialPriceID:     env.GetEnv("TRIAL_PRICE_ID", ""),
		TrialPeriodDays:  env.GetEnvInt("TRIAL_PERIOD_DAYS", 7),
		SecretKey:        env.GetEnv("STRIPE_SECRET_KEY", ""),
		PublishableKey:   env.GetEnv("STRIPE_PUBLISHABLE_KEY", ""),
		WebhookSecret:    env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		CatalogSyncEvery: env.GetEnvDuration("BILLING_CATALOG_SYNC_INTERVAL", 6*time.Hour),
	}
	if !cfg.Enabled {
		return cfg, nil
	}
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required when SUBSCRIPTION_ENABLE is set")
	}
	if cfg.HasFreePlan && cfg.FreePriceID == "" {
		return nil, errors.New("FREE_PRICE_ID is required when HAS_FREE_PLAN is set")
	}
	if !cfg.HasFreePlan && cfg.HasTrialPlan && cfg.TrialPriceID == "" {
		return nil, errors.New("TRIAL_PRICE_ID is required when HAS_TRIAL_PLAN is set")
	}
	return cfg, nil
}

func (c *Config) Prices() PlanPrices {
	return PlanPrices{FreePriceID: c.FreePriceID, TrialPriceID: c.TrialPriceID, HasFreePlan: c.HasFreePlan}
}

func (c *Config) TrialPeriod() time.Duration {
	return time.Duration(c.TrialPeriodDays) * 24 * time.Hour
}
