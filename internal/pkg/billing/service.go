package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/entitlements"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

var (
	ErrAmbiguousScheduleSource = errors.New("schedule needs a price or a subscription, not both")
	ErrMissingScheduleSource   = errors.New("schedule needs a price or a subscription")
	ErrNoSchedule              = errors.New("customer has no active schedule")
	ErrInvalidRefund           = errors.New("invalid refund request")
)

// Refund reasons accepted by the provider.
var RefundReasons = []string{"duplicate", "fraudulent", "requested_by_customer"}

const MinRefundAmount = 100

// Service provides subscription scheduling plus provider-neutral
// synchronization and reconciliation.
type Service struct {
	repo     Repository
	payments Payments
	cfg      *Config
	mail     mail.Dispatcher
	now      func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, payments Payments, cfg *Config) *Service {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Service{repo: repo, payments: payments, cfg: cfg, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, payments Payments, cfg *Config) *Service {
	return NewService(NewRepository(db), payments, cfg)
}

// SetMailDispatcher wires the asynchronous mail queue after construction.
func (s *Service) SetMailDispatcher(d mail.Dispatcher) {
	s.mail = d
}

func (s *Service) Config() *Config {
	return s.cfg
}

// UpsertBillingAccount creates or updates a linked billing identity for a user.
func (s *Service) UpsertBillingAccount(ctx context.Context, userID uint, provider, providerAccountID, email string) (*models.BillingAccount, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	paID := strings.TrimSpace(providerAccountID)
	if userID == 0 || p == "" || paID == "" {
		return nil, errors.New("user_id, provider and provider_account_id are required")
	}

	account := &models.BillingAccount{
		UserID:            userID,
		Provider:          p,
		ProviderAccountID: paID,
		Email:             strings.TrimSpace(email),
	}
	if err := s.repo.UpsertBillingAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetBillingAccountByProviderAccountID resolves a provider account to local account linkage.
func (s *Service) GetBillingAccountByProviderAccountID(ctx context.Context, provider, providerAccountID string) (*models.BillingAccount, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	paID := strings.TrimSpace(providerAccountID)
	if p == "" || paID == "" {
		return nil, errors.New("provider and provider_account_id are required")
	}
	return s.repo.GetBillingAccountByProviderAccountID(p, paID)
}

func (s *Service) account(userID uint) (*models.BillingAccount, error) {
	return s.repo.GetBillingAccountByUserID(models.BillingProviderStripe, userID)
}

// InitializeUser links the user to a provider customer and starts the free or
// trial schedule. Users that already have a schedule keep it.
func (s *Service) InitializeUser(ctx context.Context, userID uint) (*Schedule, error) {
	user, err := s.repo.GetUser(userID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.payments.FindOrCreateCustomer(ctx, user.Email, user.DisplayName(), user.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.UpsertBillingAccount(ctx, user.ID, models.BillingProviderStripe, customerID, user.Email); err != nil {
		return nil, err
	}

	existing, err := s.payments.ListSchedules(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	switch {
	case s.cfg.HasFreePlan:
		return s.CreateSchedule(ctx, ScheduleParams{CustomerID: customerID, PriceID: s.cfg.FreePriceID})
	case s.cfg.HasTrialPlan:
		trialEnd := s.now().Add(s.cfg.TrialPeriod())
		return s.CreateSchedule(ctx, ScheduleParams{CustomerID: customerID, PriceID: s.cfg.TrialPriceID, TrialEnd: &trialEnd})
	default:
		log.Infof("[Billing] user %d linked to %s without a starting plan", userID, customerID)
		return nil, nil
	}
}

// GetSchedule returns the user's active schedule.
func (s *Service) GetSchedule(ctx context.Context, userID uint) (*Schedule, error) {
	acct, err := s.account(userID)
	if err != nil {
		return nil, err
	}
	schedules, err := s.payments.ListSchedules(ctx, acct.ProviderAccountID)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, ErrNoSchedule
	}
	return &schedules[0], nil
}

// CreateSchedule starts a schedule from exactly one of a price or an existing subscription.
func (s *Service) CreateSchedule(ctx context.Context, p ScheduleParams) (*Schedule, error) {
	hasPrice := strings.TrimSpace(p.PriceID) != ""
	hasSub := strings.TrimSpace(p.FromSubscription) != ""
	switch {
	case hasPrice && hasSub:
		return nil, ErrAmbiguousScheduleSource
	case !hasPrice && !hasSub:
		return nil, ErrMissingScheduleSource
	}
	sched, err := s.payments.CreateSchedule(ctx, p)
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] created schedule %s for customer %s", sched.ID, p.CustomerID)
	return sched, nil
}

// Cancel ends the paid plan at the end of the current phase.
func (s *Service) Cancel(ctx context.Context, userID uint) (*Schedule, error) {
	sched, err := s.GetSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}
	phases, behavior, err := CancelPhases(sched, s.now(), s.cfg.Prices())
	if err != nil {
		return nil, err
	}
	return s.payments.UpdateSchedule(ctx, sched.ID, phases, behavior)
}

func (s *Service) Upgrade(ctx context.Context, userID uint, priceID string) (*Schedule, error) {
	sched, err := s.GetSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}
	phases, err := UpgradePhases(sched, s.now(), priceID)
	if err != nil {
		return nil, err
	}
	return s.payments.UpdateSchedule(ctx, sched.ID, phases, EndBehaviorRelease)
}

func (s *Service) Downgrade(ctx context.Context, userID uint, priceID string) (*Schedule, error) {
	sched, err := s.GetSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}
	phases, err := DowngradePhases(sched, s.now(), priceID)
	if err != nil {
		return nil, err
	}
	return s.payments.UpdateSchedule(ctx, sched.ID, phases, EndBehaviorRelease)
}

// PriceOption is one purchasable price for the pricing page.
type PriceOption struct {
	PriceID  string
	Name     string
	PlanKey  string
	Amount   string
	Currency string
	Interval string
}

// FormatAmount renders smallest-unit amounts in whole currency units.
func FormatAmount(cents int64) string {
	return strconv.FormatInt(cents/100, 10)
}

// Pricing lists the active mirrored prices split by interval. The trial price is never offered.
func (s *Service) Pricing(ctx context.Context) (monthly, yearly []PriceOption, err error) {
	_ = ctx
	prices, err := s.repo.ListActivePrices()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range prices {
		if p.ProviderPriceID == s.cfg.TrialPriceID && s.cfg.TrialPriceID != "" {
			continue
		}
		opt := PriceOption{
			PriceID:  p.ProviderPriceID,
			Name:     p.Product.Name,
			PlanKey:  p.Product.PlanKey,
			Amount:   FormatAmount(p.UnitAmount),
			Currency: strings.ToUpper(p.Currency),
			Interval: p.Interval,
		}
		switch p.Interval {
		case models.BillingIntervalMonth:
			monthly = append(monthly, opt)
		case models.BillingIntervalYear:
			yearly = append(yearly, opt)
		}
	}
	return monthly, yearly, nil
}

// SetupPayment returns the client secret for collecting a card.
func (s *Service) SetupPayment(ctx context.Context, userID uint) (string, error) {
	acct, err := s.account(userID)
	if err != nil {
		return "", err
	}
	return s.payments.CreateSetupIntent(ctx, acct.ProviderAccountID)
}

// ConfirmPayment makes the card the default, subscribes to priceID, mirrors the
// subscription and puts it under a schedule.
func (s *Service) ConfirmPayment(ctx context.Context, userID uint, paymentMethodID, priceID string) (*ConfirmResult, error) {
	if strings.TrimSpace(paymentMethodID) == "" || strings.TrimSpace(priceID) == "" {
		return nil, errors.New("payment method and price are required")
	}
	acct, err := s.account(userID)
	if err != nil {
		return nil, err
	}
	if err := s.payments.SetDefaultPaymentMethod(ctx, acct.ProviderAccountID, paymentMethodID); err != nil {
		return nil, fmt.Errorf("set default payment method: %w", err)
	}
	acct.DefaultPaymentMethodID = paymentMethodID
	if err := s.repo.SaveBillingAccount(acct); err != nil {
		return nil, err
	}

	res, err := s.payments.CreateSubscription(ctx, acct.ProviderAccountID, priceID, paymentMethodID)
	if err != nil {
		return nil, err
	}
	sched, err := s.CreateSchedule(ctx, ScheduleParams{CustomerID: acct.ProviderAccountID, FromSubscription: res.Subscription.ID})
	if err != nil {
		return nil, err
	}
	res.Subscription.ScheduleID = sched.ID
	if _, err := s.syncProviderSubscription(ctx, res.Subscription); err != nil {
		return nil, err
	}
	return res, nil
}

// CatalogStats summarizes a catalog sync.
type CatalogStats struct {
	Products int `json:"products"`
	Prices   int `json:"prices"`
}

// SyncCatalog mirrors provider products and prices and upserts one plan mapping per price.
func (s *Service) SyncCatalog(ctx context.Context) (*CatalogStats, error) {
	products, err := s.payments.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	prices, err := s.payments.ListPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}

	stats := &CatalogStats{}
	byProvider := make(map[string]*models.BillingProduct, len(products))
	productIDs := make([]string, 0, len(products))
	for _, p := range products {
		row := &models.BillingProduct{
			ProviderProductID: p.ID,
			Name:              p.Name,
			Description:       p.Description,
			PlanKey:           planKey(p.Metadata, p.Name),
			Active:            p.Active,
		}
		if err := s.repo.UpsertProduct(row); err != nil {
			return nil, err
		}
		byProvider[p.ID] = row
		productIDs = append(productIDs, p.ID)
		stats.Products++
	}

	priceIDs := make([]string, 0, len(prices))
	for _, p := range prices {
		product, ok := byProvider[p.ProductID]
		if !ok {
			log.Warnf("[Billing] price %s references unknown product %s", p.ID, p.ProductID)
			continue
		}
		row := &models.BillingPrice{
			ProviderPriceID: p.ID,
			ProductID:       product.ID,
			UnitAmount:      p.UnitAmount,
			Currency:        p.Currency,
			Interval:        normalizeInterval(p.Interval),
			Active:          p.Active,
		}
		if err := s.repo.UpsertPrice(row); err != nil {
			return nil, err
		}
		mapping := &models.BillingPlanMapping{
			Provider:        models.BillingProviderStripe,
			ProviderPlanRef: p.ID,
			InternalPlan:    normalizePlan(product.PlanKey),
			BillingInterval: row.Interval,
			IsActive:        p.Active && product.Active,
		}
		if err := s.repo.UpsertPlanMapping(mapping); err != nil {
			return nil, err
		}
		priceIDs = append(priceIDs, p.ID)
		stats.Prices++
	}

	if err := s.repo.DeactivateCatalogExcept(productIDs, priceIDs); err != nil {
		return nil, err
	}
	log.Infof("[Billing] catalog synced: %d products, %d prices", stats.Products, stats.Prices)
	return stats, nil
}

// RefundRequest is the admin refund form.
type RefundRequest struct {
	ChargeID        string `form:"charge_id" json:"charge_id"`
	PaymentIntentID string `form:"payment_intent_id" json:"payment_intent_id"`
	Amount          int64  `form:"amount" json:"amount"`
	Reason          string `form:"reason" json:"reason"`
}

func (r RefundRequest) Validate() error {
	if (r.ChargeID == "") == (r.PaymentIntentID == "") {
		return fmt.Errorf("%w: give exactly one of charge or payment intent", ErrInvalidRefund)
	}
	if r.Amount < MinRefundAmount {
		return fmt.Errorf("%w: amount must be at least %d", ErrInvalidRefund, MinRefundAmount)
	}
	for _, reason := range RefundReasons {
		if r.Reason == reason {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown reason %q", ErrInvalidRefund, r.Reason)
}

// Refund issues a refund with the provider and records it.
func (s *Service) Refund(ctx context.Context, adminID uint, req RefundRequest) (*models.BillingRefund, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ref, err := s.payments.CreateRefund(ctx, RefundParams(req))
	if err != nil {
		return nil, err
	}
	row := &models.BillingRefund{
		ProviderRefundID: ref.ID,
		ChargeID:         ref.ChargeID,
		PaymentIntentID:  ref.PaymentIntentID,
		Amount:           ref.Amount,
		Currency:         ref.Currency,
		Reason:           req.Reason,
		Status:           ref.Status,
		FailureReason:    ref.FailureReason,
		CreatedByUserID:  adminID,
	}
	if row.Status == "" {
		row.Status = models.RefundStatusPending
	}
	if err := s.repo.CreateRefund(row); err != nil {
		return nil, err
	}
	log.Infof("[Billing] admin %d refunded %d on %s%s", adminID, ref.Amount, ref.ChargeID, ref.PaymentIntentID)
	return row, nil
}

// HasActiveSubscription is true for a paid plan or any entitling mirrored subscription.
func (s *Service) HasActiveSubscription(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return false, err
	}
	if entitlements.Normalize(us.Plan) != entitlements.PlanFree {
		return true, nil
	}
	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if isEntitlingStatus(sub.Status) {
			return true, nil
		}
	}
	return false, nil
}

// ResolveMappedPlan resolves provider plan references to an internal plan.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPlanRef, interval string) (string, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPlanRef)
	i := normalizeInterval(interval)
	if p == "" || ref == "" {
		return string(entitlements.PlanFree), errors.New("provider and provider plan ref are required")
	}

	// Prefer exact interval match.
	m, err := s.repo.FindActivePlanMapping(p, ref, i)
	if err == nil {
		return normalizePlan(m.InternalPlan), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	// Fallback for mappings that intentionally use "unknown".
	m, err = s.repo.FindActivePlanMapping(p, ref, "unknown")
	if err == nil {
		return normalizePlan(m.InternalPlan), nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return string(entitlements.PlanFree), gorm.ErrRecordNotFound
	}
	return "", err
}

// ResolveBestMappedTier selects the best mapped internal plan from a list of
// provider plan refs and returns the winning provider plan ref + internal plan.
func (s *Service) ResolveBestMappedTier(ctx context.Context, provider string, providerPlanRefs []string, interval string) (string, string, error) {
	if len(providerPlanRefs) == 0 {
		return "", string(entitlements.PlanFree), gorm.ErrRecordNotFound
	}

	bestTier := ""
	bestPlan := string(entitlements.PlanFree)
	foundMapped := false
	seen := make(map[string]struct{}, len(providerPlanRefs))

	for _, raw := range providerPlanRefs {
		ref := strings.TrimSpace(raw)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		plan, err := s.ResolveMappedPlan(ctx, provider, ref, interval)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return "", "", err
		}

		if !foundMapped || planRank(plan) > planRank(bestPlan) {
			foundMapped = true
			bestTier = ref
			bestPlan = plan
		}
	}

	if foundMapped {
		return bestTier, bestPlan, nil
	}

	// Fallback: keep the first valid tier ref with free plan.
	for _, raw := range providerPlanRefs {
		ref := strings.TrimSpace(raw)
		if ref != "" {
			return ref, string(entitlements.PlanFree), gorm.ErrRecordNotFound
		}
	}
	return "", string(entitlements.PlanFree), gorm.ErrRecordNotFound
}

// syncProviderSubscription maps a provider subscription onto its user and syncs it.
func (s *Service) syncProviderSubscription(ctx context.Context, sub *Subscription) (*models.BillingSubscription, error) {
	acct, err := s.repo.GetBillingAccountByProviderAccountID(models.BillingProviderStripe, sub.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("no billing account for customer %s: %w", sub.CustomerID, err)
	}
	ref := ""
	if len(sub.PriceIDs) > 0 {
		ref = sub.PriceIDs[0]
	}
	if len(sub.PriceIDs) > 1 {
		best, _, err := s.ResolveBestMappedTier(ctx, models.BillingProviderStripe, sub.PriceIDs, sub.Interval)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if best != "" {
			ref = best
		}
	}
	mirror, _, err := s.SyncSubscription(ctx, NormalizedSubscription{
		UserID:                 acct.UserID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     sub.CustomerID,
		ProviderPlanRef:        ref,
		ScheduleID:             sub.ScheduleID,
		BillingInterval:        sub.Interval,
		Status:                 sub.Status,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		TrialEnd:               sub.TrialEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		RawPayloadJSON:         sub.Raw,
	})
	return mirror, err
}

// SyncSubscription upserts provider subscription data and reconciles user plan.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.BillingSubscription, string, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if in.UserID == 0 || provider == "" || strings.TrimSpace(in.ProviderSubscriptionID) == "" {
		return nil, "", errors.New("user_id, provider and provider_subscription_id are required")
	}

	interval := normalizeInterval(in.BillingInterval)
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = models.BillingStatusActive
	}

	internalPlan, err := s.ResolveMappedPlan(ctx, provider, in.ProviderPlanRef, interval)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}
	if internalPlan == "" {
		internalPlan = string(entitlements.PlanFree)
	}

	sub := &models.BillingSubscription{
		UserID:                 in.UserID,
		Provider:               provider,
		ProviderSubscriptionID: strings.TrimSpace(in.ProviderSubscriptionID),
		ProviderCustomerID:     strings.TrimSpace(in.ProviderCustomerID),
		ProviderPlanRef:        strings.TrimSpace(in.ProviderPlanRef),
		ScheduleID:             in.ScheduleID,
		InternalPlan:           internalPlan,
		BillingInterval:        interval,
		Status:                 status,
		CurrentPeriodStart:     in.CurrentPeriodStart,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		TrialEnd:               in.TrialEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		RawPayloadJSON:         in.RawPayloadJSON,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, "", err
	}

	effectivePlan, err := s.ReconcileUserPlan(ctx, in.UserID)
	if err != nil {
		return sub, "", err
	}
	return sub, effectivePlan, nil
}

// ReconcileUserPlan computes and writes the best effective plan for a user.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID uint) (string, error) {
	_ = ctx
	if userID == 0 {
		return "", errors.New("user_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return "", err
	}

	best := string(entitlements.PlanFree)
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		candidate := normalizePlan(sub.InternalPlan)
		if planRank(candidate) > planRank(best) {
			best = candidate
		}
	}

	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return "", err
	}
	if normalizePlan(us.Plan) == best {
		return best, nil
	}
	us.Plan = best
	if err := s.repo.SaveUserSettings(us); err != nil {
		return "", err
	}
	return best, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// sendMail queues a template for the customer's user. Failures are logged only.
func (s *Service) sendMail(ctx context.Context, customerID, template string, expiry *time.Time) {
	if s.mail == nil {
		log.Warnf("[Billing] no mail dispatcher, dropping %s for %s", template, customerID)
		return
	}
	acct, err := s.repo.GetBillingAccountByProviderAccountID(models.BillingProviderStripe, customerID)
	if err != nil {
		log.Warnf("[Billing] %s: no account for customer %s: %v", template, customerID, err)
		return
	}
	user, err := s.repo.GetUser(acct.UserID)
	if err != nil {
		log.Warnf("[Billing] %s: user %d: %v", template, acct.UserID, err)
		return
	}
	data := views.EmailData{
		SiteName: env.SiteName(),
		Domain:   env.PublicBaseURL(),
		UserID:   user.ID,
		Name:     user.DisplayName(),
	}
	if expiry != nil {
		data.ExpiryDate = expiry.Format("January 2, 2006")
	}
	if err := s.mail.Dispatch(ctx, mail.Envelope{To: user.Email, Template: template, Data: data}); err != nil {
		log.Errorf("[Billing] queue %s for user %d: %v", template, user.ID, err)
	}
}
