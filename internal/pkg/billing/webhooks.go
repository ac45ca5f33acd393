package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
	"github.com/ManuelReschke/saaskit/internal/pkg/metrics"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookResult reports how a delivery was handled.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
}

// HandleStripeWebhook verifies, records and dispatches one Stripe delivery.
// Deliveries with a bad signature are recorded and rejected with ErrInvalidSignature.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, verr := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if verr != nil {
		var head struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		_ = json.Unmarshal(payload, &head)
		if _, _, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
			Provider:        models.BillingProviderStripe,
			ProviderEventID: head.ID,
			EventType:       head.Type,
			PayloadJSON:     string(payload),
		}); err != nil {
			log.Errorf("[Billing] record unsigned event %s: %v", head.ID, err)
		}
		metrics.RecordWebhook(head.Type, "invalid_signature")
		log.Warnf("[Billing] rejected webhook %s (%s): %v", head.ID, head.Type, verr)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, verr)
	}

	eventType := string(event.Type)
	res := &WebhookResult{EventID: event.ID, EventType: eventType}

	created, rec, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		metrics.RecordWebhook(eventType, "error")
		return nil, err
	}
	if !created && rec.Processed() && rec.ProcessingError == "" {
		res.Duplicate = true
		metrics.RecordWebhook(eventType, "duplicate")
		return res, nil
	}

	handleErr := s.dispatchEvent(ctx, &event)
	if err := s.MarkWebhookProcessed(ctx, rec.ID, handleErr); err != nil {
		log.Errorf("[Billing] mark event %s processed: %v", event.ID, err)
	}
	if handleErr != nil {
		metrics.RecordWebhook(eventType, "error")
		log.Errorf("[Billing] handle %s (%s): %v", event.ID, eventType, handleErr)
		return res, handleErr
	}
	metrics.RecordWebhook(eventType, "processed")
	return res, nil
}

func (s *Service) dispatchEvent(ctx context.Context, event *stripe.Event) error {
	if event.Data == nil {
		return errors.New("event without data")
	}
	raw := event.Data.Raw

	switch event.Type {
	case "subscription_schedule.canceled":
		var sched stripe.SubscriptionSchedule
		if err := json.Unmarshal(raw, &sched); err != nil {
			return err
		}
		return s.onScheduleCanceled(ctx, &sched)
	case "subscription_schedule.released":
		var sched stripe.SubscriptionSchedule
		if err := json.Unmarshal(raw, &sched); err != nil {
			return err
		}
		return s.onScheduleReleased(ctx, &sched)
	case "payment_method.attached":
		var pm stripe.PaymentMethod
		if err := json.Unmarshal(raw, &pm); err != nil {
			return err
		}
		return s.onPaymentMethodAttached(ctx, paymentMethodFromStripe(&pm))
	case "payment_method.detached":
		var pm stripe.PaymentMethod
		if err := json.Unmarshal(raw, &pm); err != nil {
			return err
		}
		// Detached methods arrive without a customer; the previous value carries it.
		customerID := ""
		if prev, ok := event.Data.PreviousAttributes["customer"].(string); ok {
			customerID = prev
		}
		return s.onPaymentMethodDetached(ctx, pm.ID, customerID)
	case "invoice.payment_failed", "invoice.payment_action_required":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return err
		}
		return s.onInvoicePaymentFailed(ctx, &inv)
	case "customer.subscription.trial_will_end":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		mirror := subscriptionFromStripe(&sub)
		s.sendMail(ctx, mirror.CustomerID, mail.TemplateTrialExpiresSoon, mirror.TrialEnd)
		return nil
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		_, err := s.syncProviderSubscription(ctx, subscriptionFromStripe(&sub))
		return err
	case "charge.refund.updated":
		var ref stripe.Refund
		if err := json.Unmarshal(raw, &ref); err != nil {
			return err
		}
		return s.onRefundUpdated(ctx, refundFromStripe(&ref))
	case "charge.succeeded":
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return err
		}
		return s.onChargeSucceeded(ctx, &ch)
	default:
		log.Debugf("[Billing] ignoring event type %s", event.Type)
		return nil
	}
}

func (s *Service) onScheduleCanceled(ctx context.Context, sched *stripe.SubscriptionSchedule) error {
	if !s.cfg.HasFreePlan || sched.Customer == nil {
		return nil
	}
	_, err := s.CreateSchedule(ctx, ScheduleParams{CustomerID: sched.Customer.ID, PriceID: s.cfg.FreePriceID})
	return err
}

func (s *Service) onScheduleReleased(ctx context.Context, sched *stripe.SubscriptionSchedule) error {
	if sched.ReleasedSubscription == nil || sched.ReleasedSubscription.ID == "" {
		return nil
	}
	customerID := ""
	if sched.Customer != nil {
		customerID = sched.Customer.ID
	}
	_, err := s.CreateSchedule(ctx, ScheduleParams{CustomerID: customerID, FromSubscription: sched.ReleasedSubscription.ID})
	return err
}

func (s *Service) onPaymentMethodAttached(ctx context.Context, pm PaymentMethod) error {
	if pm.CustomerID == "" {
		return errors.New("payment method without customer")
	}
	row := &models.BillingPaymentMethod{
		ProviderPaymentMethodID: pm.ID,
		CustomerID:              pm.CustomerID,
		Brand:                   pm.Brand,
		Last4:                   pm.Last4,
		ExpMonth:                pm.ExpMonth,
		ExpYear:                 pm.ExpYear,
	}
	if err := s.repo.UpsertPaymentMethod(row); err != nil {
		return err
	}

	acct, err := s.repo.GetBillingAccountByProviderAccountID(models.BillingProviderStripe, pm.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if acct.DefaultPaymentMethodID != "" {
		return nil
	}
	if err := s.payments.SetDefaultPaymentMethod(ctx, pm.CustomerID, pm.ID); err != nil {
		return err
	}
	acct.DefaultPaymentMethodID = pm.ID
	return s.repo.SaveBillingAccount(acct)
}

func (s *Service) onPaymentMethodDetached(ctx context.Context, paymentMethodID, customerID string) error {
	if err := s.repo.DeletePaymentMethod(paymentMethodID); err != nil {
		return err
	}
	if customerID == "" {
		return nil
	}
	acct, err := s.repo.GetBillingAccountByProviderAccountID(models.BillingProviderStripe, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if acct.DefaultPaymentMethodID != paymentMethodID {
		return nil
	}

	remaining, err := s.repo.ListPaymentMethods(customerID)
	if err != nil {
		return err
	}
	acct.DefaultPaymentMethodID = ""
	if len(remaining) > 0 {
		next := remaining[0].ProviderPaymentMethodID
		if err := s.payments.SetDefaultPaymentMethod(ctx, customerID, next); err != nil {
			return err
		}
		acct.DefaultPaymentMethodID = next
	}
	return s.repo.SaveBillingAccount(acct)
}

func (s *Service) onInvoicePaymentFailed(ctx context.Context, inv *stripe.Invoice) error {
	if inv.Customer == nil {
		return errors.New("invoice without customer")
	}
	if inv.Subscription != nil && inv.Subscription.ID != "" {
		sub, err := s.payments.GetSubscription(ctx, inv.Subscription.ID)
		if err != nil {
			return err
		}
		mirror := models.BillingSubscription{CurrentPeriodStart: sub.CurrentPeriodStart, TrialEnd: sub.TrialEnd}
		if mirror.FirstChargeAfterTrial() {
			log.Infof("[Billing] first charge after trial failed, canceling %s", sub.ID)
			if err := s.payments.CancelSubscription(ctx, sub.ID); err != nil {
				return err
			}
		}
	}
	s.sendMail(ctx, inv.Customer.ID, mail.TemplateSubscriptionError, nil)
	return nil
}

func (s *Service) onRefundUpdated(ctx context.Context, ref *Refund) error {
	_ = ctx
	row, err := s.repo.GetRefundByProviderID(ref.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] update for unknown refund %s", ref.ID)
			return nil
		}
		return err
	}
	if ref.Status != models.RefundStatusFailed {
		row.Status = ref.Status
		return s.repo.SaveRefund(row)
	}
	row.Status = models.RefundStatusFailed
	row.FailureReason = ref.FailureReason
	return s.repo.SaveRefund(row)
}

func (s *Service) onChargeSucceeded(ctx context.Context, ch *stripe.Charge) error {
	if ch.Invoice == nil || ch.Invoice.ID == "" {
		return nil
	}
	subID := ""
	if ch.Invoice.Subscription != nil {
		subID = ch.Invoice.Subscription.ID
	}
	if subID == "" {
		id, err := s.payments.InvoiceSubscriptionID(ctx, ch.Invoice.ID)
		if err != nil {
			return err
		}
		subID = id
	}
	if subID == "" {
		return nil
	}
	sub, err := s.payments.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if sub.CurrentPeriodEnd == nil {
		return nil
	}
	acct, err := s.repo.GetBillingAccountByProviderAccountID(models.BillingProviderStripe, sub.CustomerID)
	if err != nil {
		return err
	}
	user, err := s.repo.GetUser(acct.UserID)
	if err != nil {
		return err
	}
	if !user.SetPaidUntil(*sub.CurrentPeriodEnd) {
		return nil
	}
	return s.repo.SaveUser(user)
}
