package billing

import (
	"context"
	"time"
)

// NormalizedSubscription is the provider-agnostic shape used by the billing
// service when syncing external subscription state into local tables.
type NormalizedSubscription struct {
	UserID                 uint
	Provider               string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderPlanRef        string
	ScheduleID             string
	BillingInterval        string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	TrialEnd               *time.Time
	CancelAtPeriodEnd      bool
	RawPayloadJSON         string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Subscription is a provider subscription reduced to what the service uses.
type Subscription struct {
	ID                 string
	CustomerID         string
	PriceIDs           []string
	Interval           string
	Status             string
	ScheduleID         string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	Raw                string
}

// ConfirmResult tells the browser which client secret to confirm.
type ConfirmResult struct {
	Type         string        `json:"type"`
	ClientSecret string        `json:"clientSecret"`
	Subscription *Subscription `json:"-"`
}

type Product struct {
	ID          string
	Name        string
	Description string
	Metadata    map[string]string
	Active      bool
}

type Price struct {
	ID         string
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   string
	Active     bool
}

type PaymentMethod struct {
	ID         string
	CustomerID string
	Brand      string
	Last4      string
	ExpMonth   int64
	ExpYear    int64
	Created    time.Time
}

type Refund struct {
	ID              string
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Reason          string
	Status          string
	FailureReason   string
}

// ScheduleParams creates a schedule from a price or from an existing subscription.
type ScheduleParams struct {
	CustomerID       string
	PriceID          string
	FromSubscription string
	TrialEnd         *time.Time
}

type RefundParams struct {
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	Reason          string
}

// Payments is the payment provider as the service sees it.
type Payments interface {
	FindOrCreateCustomer(ctx context.Context, email, name string, userID uint) (string, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	ListSchedules(ctx context.Context, customerID string) ([]Schedule, error)
	CreateSchedule(ctx context.Context, p ScheduleParams) (*Schedule, error)
	UpdateSchedule(ctx context.Context, scheduleID string, phases []Phase, endBehavior string) (*Schedule, error)
	CreateSetupIntent(ctx context.Context, customerID string) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*ConfirmResult, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	InvoiceSubscriptionID(ctx context.Context, invoiceID string) (string, error)
	CancelSubscription(ctx context.Context, id string) error
	ListProducts(ctx context.Context) ([]Product, error)
	ListPrices(ctx context.Context) ([]Price, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	CreateRefund(ctx context.Context, p RefundParams) (*Refund, error)
}
