// Package services wires the domain services once at startup and hands them
// to controllers and job processors.
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/accounts"
	"github.com/ManuelReschke/saaskit/internal/pkg/agent"
	"github.com/ManuelReschke/saaskit/internal/pkg/billing"
	"github.com/ManuelReschke/saaskit/internal/pkg/cloud"
	"github.com/ManuelReschke/saaskit/internal/pkg/crawler"
	"github.com/ManuelReschke/saaskit/internal/pkg/dashboard"
	"github.com/ManuelReschke/saaskit/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
	"github.com/ManuelReschke/saaskit/internal/pkg/notifications"
	"github.com/ManuelReschke/saaskit/internal/pkg/objectstore"
	"github.com/ManuelReschke/saaskit/internal/pkg/otp"
	"github.com/ManuelReschke/saaskit/internal/pkg/realtime"
	"github.com/ManuelReschke/saaskit/internal/pkg/secrets"
)

// Registry holds every long-lived service.
type Registry struct {
	Repos         *repository.Repositories
	Accounts      *accounts.Service
	Billing       *billing.Service
	BillingConfig *billing.Config
	Dashboard     *dashboard.Service
	Notifications *notifications.Service
	Broker        *realtime.Broker
	Agents        *agent.Cache
	Secrets       *secrets.Store
	Crawler       *crawler.Crawler
	Mailer        mail.Mailer
	Avatars       *objectstore.Store
	OTP           *otp.Config
	Captcha       *hcaptcha.Verifier
	Jobs          repository.QueueRepository
}

// Build loads every subsystem config and constructs the services.
func Build(ctx context.Context, db *gorm.DB, rdb *redis.Client) (*Registry, error) {
	repos := repository.NewRepositories(db)

	billingCfg, err := billing.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("billing config: %w", err)
	}
	agentCfg := agent.LoadConfig()
	cloudCfg, err := cloud.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("cloud config: %w", err)
	}
	awsCfg, err := cloudCfg.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	mailCfg, err := mail.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("mail config: %w", err)
	}
	storeCfg, err := objectstore.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("object store config: %w", err)
	}

	broker := realtime.NewBroker(rdb)
	agents := agent.NewCache(agent.DefaultIdleTTL)
	store := secrets.NewStoreFromConfig(awsCfg)

	var mailer mail.Mailer
	switch mailCfg.Backend {
	case "ses":
		mailer = mail.NewSESMailerFromConfig(awsCfg, mailCfg.Sender)
	default:
		mailer = mail.NewSMTPMailer(mailCfg)
	}

	otpCfg := otp.LoadConfig()
	avatars := objectstore.NewFromAWS(awsCfg, storeCfg)

	reg := &Registry{
		Repos:         repos,
		Accounts:      accounts.NewService(db, repos, accounts.LoadConfig(), otpCfg, avatars),
		Billing:       billing.NewServiceFromDB(db, billing.NewStripePayments(billingCfg.SecretKey), billingCfg),
		BillingConfig: billingCfg,
		Dashboard:     dashboard.NewService(repos, store, agents, agent.NewBuilder(agentCfg), broker),
		Notifications: notifications.NewService(repos.Notification, broker),
		Broker:        broker,
		Agents:        agents,
		Secrets:       store,
		Crawler:       crawler.NewFromConfig(awsCfg),
		Mailer:        mailer,
		Avatars:       avatars,
		OTP:           otpCfg,
		Captcha:       hcaptcha.New(),
		Jobs:          repository.NewQueueRepository(rdb),
	}
	log.Infof("[Services] initialized (mail=%s, billing=%t)", mailCfg.Backend, billingCfg.Enabled)
	return reg, nil
}

// Close releases cached agents.
func (r *Registry) Close() {
	if r.Agents != nil {
		r.Agents.Close()
	}
}

var (
	global   *Registry
	globalMu sync.RWMutex
)

func Set(r *Registry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = r
}

// Get returns the registry set at startup.
func Get() *Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		panic("services registry not initialized. Call services.Set first.")
	}
	return global
}
