package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
)

type fakePayments struct {
	mu sync.Mutex

	customers     map[string]string // email -> id
	schedules     map[string][]Schedule
	subscriptions map[string]*Subscription
	invoiceSubs   map[string]string
	products      []Product
	prices        []Price

	created     []ScheduleParams
	updated     map[string][]Phase
	defaults    map[string]string
	canceled    []string
	refunds     []RefundParams
	createSubFn func(customerID, priceID string) *ConfirmResult
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		customers:     map[string]string{},
		schedules:     map[string][]Schedule{},
		subscriptions: map[string]*Subscription{},
		invoiceSubs:   map[string]string{},
		updated:       map[string][]Phase{},
		defaults:      map[string]string{},
	}
}

func (f *fakePayments) FindOrCreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.customers[email]; ok {
		return id, nil
	}
	id := fmt.Sprintf("cus_%d", userID)
	f.customers[email] = id
	return id, nil
}

func (f *fakePayments) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[customerID] = paymentMethodID
	return nil
}

func (f *fakePayments) ListSchedules(ctx context.Context, customerID string) ([]Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules[customerID], nil
}

func (f *fakePayments) CreateSchedule(ctx context.Context, p ScheduleParams) (*Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	s := Schedule{
		ID:             fmt.Sprintf("sub_sched_%d", len(f.created)),
		CustomerID:     p.CustomerID,
		SubscriptionID: p.FromSubscription,
		EndBehavior:    EndBehaviorRelease,
	}
	if p.PriceID != "" {
		s.Phases = []Phase{{PriceID: p.PriceID, Start: t0, TrialEnd: p.TrialEnd}}
	}
	f.schedules[p.CustomerID] = append(f.schedules[p.CustomerID], s)
	return &s, nil
}

func (f *fakePayments) UpdateSchedule(ctx context.Context, scheduleID string, phases []Phase, endBehavior string) (*Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[scheduleID] = phases
	return &Schedule{ID: scheduleID, Phases: phases, EndBehavior: endBehavior}, nil
}

func (f *fakePayments) CreateSetupIntent(ctx context.Context, customerID string) (string, error) {
	return "seti_secret_" + customerID, nil
}

func (f *fakePayments) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSubFn != nil {
		return f.createSubFn(customerID, priceID), nil
	}
	sub := &Subscription{ID: "sub_new", CustomerID: customerID, PriceIDs: []string{priceID}, Interval: "month", Status: "incomplete"}
	f.subscriptions[sub.ID] = sub
	return &ConfirmResult{Type: "payment", ClientSecret: "pi_secret", Subscription: sub}, nil
}

func (f *fakePayments) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", id)
	}
	return sub, nil
}

func (f *fakePayments) InvoiceSubscriptionID(ctx context.Context, invoiceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoiceSubs[invoiceID], nil
}

func (f *fakePayments) CancelSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakePayments) ListProducts(ctx context.Context) ([]Product, error) {
	return f.products, nil
}

func (f *fakePayments) ListPrices(ctx context.Context) ([]Price, error) {
	return f.prices, nil
}

func (f *fakePayments) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	return nil, nil
}

func (f *fakePayments) CreateRefund(ctx context.Context, p RefundParams) (*Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, p)
	return &Refund{
		ID:              fmt.Sprintf("re_%d", len(f.refunds)),
		ChargeID:        p.ChargeID,
		PaymentIntentID: p.PaymentIntentID,
		Amount:          p.Amount,
		Currency:        "usd",
		Reason:          p.Reason,
		Status:          "pending",
	}, nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []string
	to   []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, e mail.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, e.Template)
	d.to = append(d.to, e.To)
	return nil
}

func (d *recordingDispatcher) templates() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}
