package repository

import (
	"github.com/ManuelReschke/saaskit/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByPasswordResetToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// ProviderAccountRepository stores OAuth identities
type ProviderAccountRepository interface {
	GetByProviderUserID(provider, providerUserID string) (*models.ProviderAccount, error)
	Upsert(account *models.ProviderAccount) error
	ListByUser(userID uint) ([]models.ProviderAccount, error)
}

// DataSourceRepository defines the data source operations. Reads are always owner scoped.
type DataSourceRepository interface {
	Create(ds *models.DataSource) error
	GetByID(id uint) (*models.DataSource, error)
	GetByIDForUser(id, userID uint) (*models.DataSource, error)
	ListByUser(userID uint) ([]models.DataSource, error)
	Update(ds *models.DataSource) error
	Delete(id uint) error
}

// MessageRepository defines the chat history operations
type MessageRepository interface {
	Create(msg *models.Message) error
	GetByID(id uint) (*models.Message, error)
	GetByIDForDataSource(id, dataSourceID uint) (*models.Message, error)
	ListByDataSource(dataSourceID uint, limit int) ([]models.Message, error)
}

// NotificationRepository defines the in-app notification operations
type NotificationRepository interface {
	Create(n *models.Notification) error
	GetByIDForUser(id, userID uint) (*models.Notification, error)
	ListByUser(userID uint, offset, limit int) ([]models.Notification, error)
	CountByUser(userID uint) (int64, error)
	CountUnread(userID uint) (int64, error)
	MarkAllRead(userID uint) (int64, error)
	SetRead(id, userID uint, read bool) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User            UserRepository
	ProviderAccount ProviderAccountRepository
	DataSource      DataSourceRepository
	Message         MessageRepository
	Notification    NotificationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:            NewUserRepository(db),
		ProviderAccount: NewProviderAccountRepository(db),
		DataSource:      NewDataSourceRepository(db),
		Message:         NewMessageRepository(db),
		Notification:    NewNotificationRepository(db),
	}
}
