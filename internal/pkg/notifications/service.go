package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/realtime"
)

const PageSize = 15

// pushed to the browser, which then refetches the list
const newNotificationMessage = "New notification"

type Service struct {
	repo repository.NotificationRepository
	pub  realtime.Publisher
}

func NewService(repo repository.NotificationRepository, pub realtime.Publisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Page is one page of a user's notifications.
type Page struct {
	Items      []models.Notification `json:"items"`
	Unread     int64                 `json:"unread"`
	Page       int                   `json:"page"`
	TotalPages int                   `json:"total_pages"`
}

// Create persists the notification and then pushes a send_notification event.
// A failed push is logged; the notification is still stored.
func (s *Service) Create(ctx context.Context, userID uint, kind, content string, data map[string]interface{}) (*models.Notification, error) {
	n := &models.Notification{UserID: userID, Type: kind, Content: content}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode notification data: %w", err)
		}
		n.Data = datatypes.JSON(raw)
	}
	if err := s.repo.Create(n); err != nil {
		return nil, err
	}

	if s.pub != nil {
		ev := realtime.Event{Type: realtime.EventSendNotification, Message: newNotificationMessage}
		if err := s.pub.Publish(ctx, realtime.NotificationGroup(userID), ev); err != nil {
			log.Warnf("[Realtime] notification %d stored but not pushed: %v", n.ID, err)
		}
	}
	return n, nil
}

// List returns page (1-based) of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uint, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	total, err := s.repo.CountByUser(userID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByUser(userID, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(userID)
	if err != nil {
		return nil, err
	}
	pages := int((total + PageSize - 1) / PageSize)
	if pages == 0 {
		pages = 1
	}
	return &Page{Items: items, Unread: unread, Page: page, TotalPages: pages}, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(userID)
}

func (s *Service) SetRead(ctx context.Context, id, userID uint, read bool) error {
	return s.repo.SetRead(id, userID, read)
}
