package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the process wide handle set by SetupDatabase.
var DB *gorm.DB

// GetDB returns the handle set by SetupDatabase (nil before setup).
func GetDB() *gorm.DB {
	return DB
}

// DSN builds the MySQL DSN from DB_* keys.
func DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// AllModels is the AutoMigrate set; tests migrate the same list into sqlite.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserSettings{},
		&models.ProviderAccount{},
		&models.DataSource{},
		&models.Message{},
		&models.Notification{},
		&models.BillingAccount{},
		&models.BillingSubscription{},
		&models.BillingProduct{},
		&models.BillingPrice{},
		&models.BillingPlanMapping{},
		&models.BillingPaymentMethod{},
		&models.BillingRefund{},
		&models.BillingWebhookEvent{},
	}
}

func SetupDatabase() error {
	var err error
	gormCfg := &gorm.Config{}
	if !env.IsDev() {
		gormCfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), gormCfg)
		if err == nil {
			// schema changes in production go through cmd/migrate
			if env.IsDev() {
				if err := DB.AutoMigrate(AllModels()...); err != nil {
					return fmt.Errorf("auto migrate: %w", err)
				}
			}
			return nil
		}

		log.Warnf("[Database] connect failed (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return fmt.Errorf("connect database: %w", err)
}
