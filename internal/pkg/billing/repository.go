package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/saaskit/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error)
	UpsertPlanMapping(m *models.BillingPlanMapping) error
	UpsertBillingAccount(account *models.BillingAccount) error
	GetBillingAccountByProviderAccountID(provider, providerAccountID string) (*models.BillingAccount, error)
	GetBillingAccountByUserID(provider string, userID uint) (*models.BillingAccount, error)
	SaveBillingAccount(account *models.BillingAccount) error
	UpsertSubscription(sub *models.BillingSubscription) error
	GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.BillingSubscription, error)
	ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error)
	GetOrCreateUserSettings(userID uint) (*models.UserSettings, error)
	SaveUserSettings(us *models.UserSettings) error
	GetUser(id uint) (*models.User, error)
	SaveUser(u *models.User) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	UpsertProduct(p *models.BillingProduct) error
	UpsertPrice(p *models.BillingPrice) error
	DeactivateCatalogExcept(productIDs, priceIDs []string) error
	ListActivePrices() ([]models.BillingPrice, error)
	GetPriceByProviderID(providerPriceID string) (*models.BillingPrice, error)
	UpsertPaymentMethod(pm *models.BillingPaymentMethod) error
	DeletePaymentMethod(providerPaymentMethodID string) error
	ListPaymentMethods(customerID string) ([]models.BillingPaymentMethod, error)
	CreateRefund(r *models.BillingRefund) error
	GetRefundByProviderID(providerRefundID string) (*models.BillingRefund, error)
	SaveRefund(r *models.BillingRefund) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("provider = ? AND provider_plan_ref = ? AND billing_interval = ? AND is_active = ?", provider, providerPlanRef, interval, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) UpsertPlanMapping(m *models.BillingPlanMapping) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_plan_ref"},
			{Name: "billing_interval"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"internal_plan", "is_active", "updated_at"}),
	}).Create(m).Error
}

func (r *gormRepository) UpsertBillingAccount(account *models.BillingAccount) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_account_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"email",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}

	return r.db.Where("provider = ? AND provider_account_id = ?", account.Provider, account.ProviderAccountID).
		First(account).Error
}

func (r *gormRepository) GetBillingAccountByProviderAccountID(provider, providerAccountID string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) GetBillingAccountByUserID(provider string, userID uint) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.Where("provider = ? AND user_id = ?", provider, userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) SaveBillingAccount(account *models.BillingAccount) error {
	return r.db.Save(account).Error
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider_customer_id",
			"provider_plan_ref",
			"schedule_id",
			"internal_plan",
			"billing_interval",
			"status",
			"current_period_start",
			"current_period_end",
			"trial_end",
			"cancel_at_period_end",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *gormRepository) SaveUserSettings(us *models.UserSettings) error {
	return r.db.Save(us).Error
}

func (r *gormRepository) GetUser(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SaveUser(u *models.User) error {
	return r.db.Save(u).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) UpsertProduct(p *models.BillingProduct) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "plan_key", "active", "updated_at"}),
	}).Create(p).Error; err != nil {
		return err
	}
	return r.db.Where("provider_product_id = ?", p.ProviderProductID).First(p).Error
}

func (r *gormRepository) UpsertPrice(p *models.BillingPrice) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_price_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id", "unit_amount", "currency", "billing_interval", "active", "updated_at"}),
	}).Create(p).Error; err != nil {
		return err
	}
	return r.db.Where("provider_price_id = ?", p.ProviderPriceID).First(p).Error
}

// DeactivateCatalogExcept flags mirrored rows that the provider no longer returns.
func (r *gormRepository) DeactivateCatalogExcept(productIDs, priceIDs []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.BillingProduct{})
		if len(productIDs) > 0 {
			q = q.Where("provider_product_id NOT IN ?", productIDs)
		} else {
			q = q.Where("1 = 1")
		}
		if err := q.Update("active", false).Error; err != nil {
			return err
		}
		q = tx.Model(&models.BillingPrice{})
		if len(priceIDs) > 0 {
			q = q.Where("provider_price_id NOT IN ?", priceIDs)
		} else {
			q = q.Where("1 = 1")
		}
		return q.Update("active", false).Error
	})
}

func (r *gormRepository) ListActivePrices() ([]models.BillingPrice, error) {
	var prices []models.BillingPrice
	err := r.db.Preload("Product").
		Joins("JOIN billing_products ON billing_products.id = billing_prices.product_id AND billing_products.active = ?", true).
		Where("billing_prices.active = ?", true).
		Order("billing_prices.unit_amount ASC").
		Find(&prices).Error
	return prices, err
}

func (r *gormRepository) GetPriceByProviderID(providerPriceID string) (*models.BillingPrice, error) {
	var p models.BillingPrice
	if err := r.db.Preload("Product").Where("provider_price_id = ?", providerPriceID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpsertPaymentMethod(pm *models.BillingPaymentMethod) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_payment_method_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"customer_id", "brand", "last4", "exp_month", "exp_year", "updated_at"}),
	}).Create(pm).Error
}

func (r *gormRepository) DeletePaymentMethod(providerPaymentMethodID string) error {
	return r.db.Where("provider_payment_method_id = ?", providerPaymentMethodID).
		Delete(&models.BillingPaymentMethod{}).Error
}

// ListPaymentMethods returns the customer's methods, newest first.
func (r *gormRepository) ListPaymentMethods(customerID string) ([]models.BillingPaymentMethod, error) {
	var pms []models.BillingPaymentMethod
	err := r.db.Where("customer_id = ?", customerID).Order("created_at DESC, id DESC").Find(&pms).Error
	return pms, err
}

func (r *gormRepository) CreateRefund(ref *models.BillingRefund) error {
	return r.db.Create(ref).Error
}

func (r *gormRepository) GetRefundByProviderID(providerRefundID string) (*models.BillingRefund, error) {
	var ref models.BillingRefund
	if err := r.db.Where("provider_refund_id = ?", providerRefundID).First(&ref).Error; err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *gormRepository) SaveRefund(ref *models.BillingRefund) error {
	return r.db.Save(ref).Error
}
