package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/saaskit/internal/pkg/billing"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

const webhookTimeout = 15 * time.Second

func scheduleJSON(s *billing.Schedule) fiber.Map {
	now := time.Now()
	phases := make([]fiber.Map, 0, len(s.Phases))
	for _, p := range s.ValidPhases(now) {
		phases = append(phases, fiber.Map{
			"price_id":  p.PriceID,
			"start":     p.Start.UTC().Format(time.RFC3339),
			"end":       formatTimePtr(p.End),
			"trial_end": formatTimePtr(p.TrialEnd),
		})
	}
	return fiber.Map{
		"id":              s.ID,
		"subscription_id": s.SubscriptionID,
		"status":          s.Status,
		"trialing":        s.IsTrialing(now),
		"phases":          phases,
	}
}

func toPriceCards(opts []billing.PriceOption, current string) []views.PriceCard {
	cards := make([]views.PriceCard, 0, len(opts))
	for _, o := range opts {
		cards = append(cards, views.PriceCard{
			PriceID:  o.PriceID,
			Name:     o.Name,
			Amount:   o.Amount,
			Currency: o.Currency,
			Interval: o.Interval,
			Current:  o.PriceID == current,
		})
	}
	return cards
}

// currentPriceID is the price of the user's current schedule phase, if any.
func currentPriceID(ctx context.Context, userID uint) string {
	if userID == 0 {
		return ""
	}
	sched, err := services.Get().Billing.GetSchedule(ctx, userID)
	if err != nil {
		return ""
	}
	phase, err := sched.CurrentPhase(time.Now())
	if err != nil {
		return ""
	}
	return phase.PriceID
}

func HandlePricing(c *fiber.Ctx) error {
	monthly, yearly, err := services.Get().Billing.Pricing(c.UserContext())
	if err != nil {
		return err
	}
	current := currentPriceID(c.UserContext(), usercontext.GetUserID(c))
	return render(c, views.Pricing(env.SiteName(), flashMessage(c), csrfToken(c),
		toPriceCards(monthly, current), toPriceCards(yearly, current)))
}

func HandleBillingSchedule(c *fiber.Ctx) error {
	sched, err := services.Get().Billing.GetSchedule(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(scheduleJSON(sched))
}

func HandleBillingCancel(c *fiber.Ctx) error {
	sched, err := services.Get().Billing.Cancel(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(scheduleJSON(sched))
}

func HandleBillingUpgrade(c *fiber.Ctx) error {
	sched, err := services.Get().Billing.Upgrade(c.UserContext(), usercontext.GetUserID(c), c.FormValue("price_id"))
	if err != nil {
		return err
	}
	refreshPlan(c)
	return c.JSON(scheduleJSON(sched))
}

func HandleBillingDowngrade(c *fiber.Ctx) error {
	sched, err := services.Get().Billing.Downgrade(c.UserContext(), usercontext.GetUserID(c), c.FormValue("price_id"))
	if err != nil {
		return err
	}
	return c.JSON(scheduleJSON(sched))
}

// HandleBillingPaymentSetup returns the client secret the card form needs.
func HandleBillingPaymentSetup(c *fiber.Ctx) error {
	reg := services.Get()
	secret, err := reg.Billing.SetupPayment(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"clientSecret":   secret,
		"publishableKey": reg.Billing.Config().PublishableKey,
	})
}

// HandleBillingPaymentConfirm subscribes to the chosen price with the collected card.
// Only reachable over XHR.
func HandleBillingPaymentConfirm(c *fiber.Ctx) error {
	res, err := services.Get().Billing.ConfirmPayment(c.UserContext(), usercontext.GetUserID(c),
		c.FormValue("payment_method_id"), c.FormValue("price_id"))
	if err != nil {
		return err
	}
	refreshPlan(c)
	return c.JSON(res)
}

// HandleStripeWebhook verifies and processes one Stripe delivery.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	res, err := services.Get().Billing.HandleStripeWebhook(ctx, rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		if res == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed", "event_id": res.EventID})
	}
	if res.Duplicate {
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func HandleUserBillingResync(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	effectivePlan, err := services.Get().Billing.ReconcileUserPlan(c.UserContext(), userID)
	if err != nil {
		log.Errorf("[Billing] resync for user %d: %v", userID, err)
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Plan re-sync failed"}).Redirect("/pricing", fiber.StatusSeeOther)
	}

	_ = session.SetSessionValue(c, usercontext.KeyPlan, effectivePlan)
	msg := fmt.Sprintf("Plan recalculated. Active plan: %s", effectivePlan)
	return flashOrJSON(c, msg, "/pricing", fiber.Map{"plan": effectivePlan})
}
