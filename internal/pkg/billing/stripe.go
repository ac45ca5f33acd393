package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripePayments implements Payments on the Stripe API.
type StripePayments struct {
	sc *client.API
}

func NewStripePayments(secretKey string) *StripePayments {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripePayments{sc: sc}
}

func (p *StripePayments) FindOrCreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	list := &stripe.CustomerListParams{Email: stripe.String(email)}
	list.Context = ctx
	iter := p.sc.Customers.List(list)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search customer: %w", err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email), Name: stripe.String(name)}
	params.Context = ctx
	params.AddMetadata("user_id", fmt.Sprint(userID))
	c, err := p.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripePayments) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{DefaultPaymentMethod: stripe.String(paymentMethodID)},
	}
	params.Context = ctx
	_, err := p.sc.Customers.Update(customerID, params)
	return err
}

func (p *StripePayments) ListSchedules(ctx context.Context, customerID string) ([]Schedule, error) {
	params := &stripe.SubscriptionScheduleListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	iter := p.sc.SubscriptionSchedules.List(params)
	var out []Schedule
	for iter.Next() {
		s := iter.SubscriptionSchedule()
		switch s.Status {
		case stripe.SubscriptionScheduleStatusActive, stripe.SubscriptionScheduleStatusNotStarted:
			out = append(out, *scheduleFromStripe(s))
		}
	}
	return out, iter.Err()
}

func (p *StripePayments) CreateSchedule(ctx context.Context, sp ScheduleParams) (*Schedule, error) {
	params := &stripe.SubscriptionScheduleParams{}
	params.Context = ctx
	if sp.FromSubscription != "" {
		params.FromSubscription = stripe.String(sp.FromSubscription)
	} else {
		phase := &stripe.SubscriptionSchedulePhaseParams{
			Items: []*stripe.SubscriptionSchedulePhaseItemParams{{Price: stripe.String(sp.PriceID), Quantity: stripe.Int64(1)}},
		}
		if sp.TrialEnd != nil {
			phase.TrialEnd = stripe.Int64(sp.TrialEnd.Unix())
		}
		params.Customer = stripe.String(sp.CustomerID)
		params.StartDateNow = stripe.Bool(true)
		params.EndBehavior = stripe.String(EndBehaviorRelease)
		params.Phases = []*stripe.SubscriptionSchedulePhaseParams{phase}
	}
	s, err := p.sc.SubscriptionSchedules.New(params)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return scheduleFromStripe(s), nil
}

func (p *StripePayments) UpdateSchedule(ctx context.Context, scheduleID string, phases []Phase, endBehavior string) (*Schedule, error) {
	params := &stripe.SubscriptionScheduleParams{
		EndBehavior:       stripe.String(endBehavior),
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	for _, ph := range phases {
		pp := &stripe.SubscriptionSchedulePhaseParams{
			Items:     []*stripe.SubscriptionSchedulePhaseItemParams{{Price: stripe.String(ph.PriceID), Quantity: stripe.Int64(1)}},
			StartDate: stripe.Int64(ph.Start.Unix()),
		}
		if ph.End != nil {
			pp.EndDate = stripe.Int64(ph.End.Unix())
		}
		if ph.TrialEnd != nil {
			pp.TrialEnd = stripe.Int64(ph.TrialEnd.Unix())
		}
		params.Phases = append(params.Phases, pp)
	}
	s, err := p.sc.SubscriptionSchedules.Update(scheduleID, params)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return scheduleFromStripe(s), nil
}

func (p *StripePayments) CreateSetupIntent(ctx context.Context, customerID string) (string, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.Context = ctx
	si, err := p.sc.SetupIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("create setup intent: %w", err)
	}
	return si.ClientSecret, nil
}

func (p *StripePayments) CreateSubscription(ctx context.Context, customerID, priceID, paymentMethodID string) (*ConfirmResult, error) {
	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(customerID),
		Items:                []*stripe.SubscriptionItemsParams{{Price: stripe.String(priceID)}},
		PaymentBehavior:      stripe.String("default_incomplete"),
		DefaultPaymentMethod: stripe.String(paymentMethodID),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	params.AddExpand("pending_setup_intent")

	sub, err := p.sc.Subscriptions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	res := &ConfirmResult{Subscription: subscriptionFromStripe(sub)}
	switch {
	case sub.PendingSetupIntent != nil:
		res.Type, res.ClientSecret = "setup", sub.PendingSetupIntent.ClientSecret
	case sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil:
		res.Type, res.ClientSecret = "payment", sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return res, nil
}

func (p *StripePayments) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.sc.Subscriptions.Get(id, params)
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

// InvoiceSubscriptionID returns the subscription an invoice was raised for, or "".
func (p *StripePayments) InvoiceSubscriptionID(ctx context.Context, invoiceID string) (string, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := p.sc.Invoices.Get(invoiceID, params)
	if err != nil {
		return "", err
	}
	if inv.Subscription == nil {
		return "", nil
	}
	return inv.Subscription.ID, nil
}

func (p *StripePayments) CancelSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := p.sc.Subscriptions.Cancel(id, params)
	return err
}

func (p *StripePayments) ListProducts(ctx context.Context) ([]Product, error) {
	params := &stripe.ProductListParams{}
	params.Context = ctx
	iter := p.sc.Products.List(params)
	var out []Product
	for iter.Next() {
		pr := iter.Product()
		out = append(out, Product{ID: pr.ID, Name: pr.Name, Description: pr.Description, Metadata: pr.Metadata, Active: pr.Active})
	}
	return out, iter.Err()
}

func (p *StripePayments) ListPrices(ctx context.Context) ([]Price, error) {
	params := &stripe.PriceListParams{}
	params.Context = ctx
	iter := p.sc.Prices.List(params)
	var out []Price
	for iter.Next() {
		out = append(out, priceFromStripe(iter.Price()))
	}
	return out, iter.Err()
}

func (p *StripePayments) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{Customer: stripe.String(customerID), Type: stripe.String("card")}
	params.Context = ctx
	iter := p.sc.PaymentMethods.List(params)
	var out []PaymentMethod
	for iter.Next() {
		out = append(out, paymentMethodFromStripe(iter.PaymentMethod()))
	}
	return out, iter.Err()
}

func (p *StripePayments) CreateRefund(ctx context.Context, rp RefundParams) (*Refund, error) {
	params := &stripe.RefundParams{Amount: stripe.Int64(rp.Amount), Reason: stripe.String(rp.Reason)}
	params.Context = ctx
	if rp.ChargeID != "" {
		params.Charge = stripe.String(rp.ChargeID)
	}
	if rp.PaymentIntentID != "" {
		params.PaymentIntent = stripe.String(rp.PaymentIntentID)
	}
	r, err := p.sc.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return refundFromStripe(r), nil
}

func unixPtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func scheduleFromStripe(s *stripe.SubscriptionSchedule) *Schedule {
	out := &Schedule{ID: s.ID, Status: string(s.Status), EndBehavior: string(s.EndBehavior)}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	for _, ph := range s.Phases {
		phase := Phase{Start: time.Unix(ph.StartDate, 0).UTC(), End: unixPtr(ph.EndDate), TrialEnd: unixPtr(ph.TrialEnd)}
		if len(ph.Items) > 0 && ph.Items[0].Price != nil {
			phase.PriceID = ph.Items[0].Price.ID
		}
		out.Phases = append(out.Phases, phase)
	}
	return out
}

func subscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: unixPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixPtr(sub.CurrentPeriodEnd),
		TrialEnd:           unixPtr(sub.TrialEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Schedule != nil {
		out.ScheduleID = sub.Schedule.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			out.PriceIDs = append(out.PriceIDs, item.Price.ID)
			if out.Interval == "" && item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	if raw, err := json.Marshal(sub); err == nil {
		out.Raw = string(raw)
	}
	return out
}

func priceFromStripe(pr *stripe.Price) Price {
	out := Price{ID: pr.ID, UnitAmount: pr.UnitAmount, Currency: string(pr.Currency), Interval: "unknown", Active: pr.Active}
	if pr.Product != nil {
		out.ProductID = pr.Product.ID
	}
	if pr.Recurring != nil {
		out.Interval = string(pr.Recurring.Interval)
	}
	return out
}

func paymentMethodFromStripe(pm *stripe.PaymentMethod) PaymentMethod {
	out := PaymentMethod{ID: pm.ID, Created: time.Unix(pm.Created, 0).UTC()}
	if pm.Customer != nil {
		out.CustomerID = pm.Customer.ID
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = pm.Card.ExpMonth
		out.ExpYear = pm.Card.ExpYear
	}
	return out
}

func refundFromStripe(r *stripe.Refund) *Refund {
	out := &Refund{
		ID:            r.ID,
		Amount:        r.Amount,
		Currency:      string(r.Currency),
		Reason:        string(r.Reason),
		Status:        string(r.Status),
		FailureReason: string(r.FailureReason),
	}
	if r.Charge != nil {
		out.ChargeID = r.Charge.ID
	}
	if r.PaymentIntent != nil {
		out.PaymentIntentID = r.PaymentIntent.ID
	}
	return out
}
