package models

import "time"

// BillingProduct mirrors a provider product. PlanKey is the internal plan it grants.
type BillingProduct struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ProviderProductID string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_product_id"`
	Name              string         `gorm:"type:varchar(255);not null" json:"name"`
	Description       string         `gorm:"type:text" json:"description"`
	PlanKey           string         `gorm:"type:varchar(50);not null;default:'free';index" json:"plan_key"`
	Active            bool           `gorm:"default:false;index" json:"active"`
	Prices            []BillingPrice `gorm:"foreignKey:ProductID" json:"prices,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// BillingPrice mirrors a provider price. UnitAmount is in the smallest currency unit.
type BillingPrice struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	ProviderPriceID string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_price_id"`
	ProductID       uint           `gorm:"not null;index" json:"product_id"`
	Product         BillingProduct `gorm:"foreignKey:ProductID" json:"-"`
	UnitAmount      int64          `gorm:"not null;default:0" json:"unit_amount"`
	Currency        string         `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Interval        string         `gorm:"column:billing_interval;type:varchar(16);not null;default:'unknown';index" json:"interval"`
	Active          bool           `gorm:"default:false;index" json:"active"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// BillingPaymentMethod mirrors a card attached to a provider customer.
type BillingPaymentMethod struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	ProviderPaymentMethodID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_payment_method_id"`
	CustomerID              string    `gorm:"type:varchar(191);not null;index" json:"customer_id"`
	Brand                   string    `gorm:"type:varchar(32);default:''" json:"brand"`
	Last4                   string    `gorm:"type:varchar(4);default:''" json:"last4"`
	ExpMonth                int64     `json:"exp_month"`
	ExpYear                 int64     `json:"exp_year"`
	CreatedAt               time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
	RefundStatusCanceled  = "canceled"
)

// BillingRefund records an admin issued refund.
type BillingRefund struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ProviderRefundID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_refund_id"`
	ChargeID         string    `gorm:"type:varchar(191);default:''" json:"charge_id"`
	PaymentIntentID  string    `gorm:"type:varchar(191);default:''" json:"payment_intent_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	Currency         string    `gorm:"type:varchar(3);default:'usd'" json:"currency"`
	Reason           string    `gorm:"type:varchar(50);default:''" json:"reason"`
	Status           string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	FailureReason    string    `gorm:"type:varchar(255);default:''" json:"failure_reason"`
	CreatedByUserID  uint      `gorm:"index" json:"created_by_user_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
