package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// PriceCard is the view model for one price on the pricing page.
type PriceCard struct {
	PriceID  string
	Name     string
	Amount   string
	Currency string
	Interval string
	Current  bool
}

// Pricing lists monthly and yearly prices. flash is shown above the table when set.
func Pricing(siteName, flash, csrf string, monthly, yearly []PriceCard) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writef(w, `<main class="pricing"><h1>Pricing</h1>`); err != nil {
			return err
		}
		if flash != "" {
			if err := writef(w, `<div class="flash">%s</div>`, esc(flash)); err != nil {
				return err
			}
		}
		for _, group := range []struct {
			label string
			cards []PriceCard
		}{{"Monthly", monthly}, {"Yearly", yearly}} {
			if err := writef(w, `<section><h2>%s</h2>`, group.label); err != nil {
				return err
			}
			for _, p := range group.cards {
				if err := priceCard(w, p, csrf); err != nil {
					return err
				}
			}
			if err := writef(w, `</section>`); err != nil {
				return err
			}
		}
		return writef(w, `</main>`)
	})
	return Layout("Pricing | "+siteName, body)
}

func priceCard(w io.Writer, p PriceCard, csrf string) error {
	action := `<button type="button" class="choose-plan" data-price-id="` + esc(p.PriceID) +
		`" data-csrf="` + esc(csrf) + `">Choose</button>`
	if p.Current {
		action = `<span class="badge">Current plan</span>`
	}
	return writef(w, `<div class="price-card"><h3>%s</h3><p class="amount">%s %s / %s</p>%s</div>`,
		esc(p.Name), esc(p.Amount), esc(p.Currency), esc(p.Interval), action)
}
