package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/billing"
	"github.com/ManuelReschke/saaskit/internal/pkg/jobqueue"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

// QueueStats is the part of the job queue the admin area reads.
type QueueStats interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// QueueItem is one job key as shown in the queue monitor.
type QueueItem struct {
	Key    string        `json:"key"`
	JobID  string        `json:"job_id"`
	Type   string        `json:"type"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	TTL    time.Duration `json:"ttl_seconds"`
}

// AdminController handles admin-related HTTP requests using repository pattern
type AdminController struct {
	repos   *repository.Repositories
	jobs    repository.QueueRepository
	queue   QueueStats
	billing *billing.Service
}

func NewAdminController(repos *repository.Repositories, jobs repository.QueueRepository, queue QueueStats, b *billing.Service) *AdminController {
	return &AdminController{repos: repos, jobs: jobs, queue: queue, billing: b}
}

// HandleDashboard returns the headline numbers of the admin area.
func (ac *AdminController) HandleDashboard(c *fiber.Ctx) error {
	totalUsers, err := ac.repos.User.Count()
	if err != nil {
		return err
	}
	recentUsers, err := ac.repos.User.List(0, 5)
	if err != nil {
		return err
	}
	stats, err := ac.queueStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"total_users":  totalUsers,
		"recent_users": recentUsers,
		"queue":        stats,
	})
}

func (ac *AdminController) queueStats(ctx context.Context) (fiber.Map, error) {
	stats, err := ac.queue.GetJobStats(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := ac.queue.GetQueueSize(ctx)
	if err != nil {
		return nil, err
	}
	processing, err := ac.queue.GetProcessingSize(ctx)
	if err != nil {
		return nil, err
	}
	return fiber.Map{
		"stats":      stats,
		"pending":    pending,
		"processing": processing,
	}, nil
}

// HandleQueues returns queue counters plus every job still held in Redis.
func (ac *AdminController) HandleQueues(c *fiber.Ctx) error {
	ctx := c.UserContext()
	stats, err := ac.queueStats(ctx)
	if err != nil {
		return err
	}
	items, err := ac.getQueueItems(ctx)
	if err != nil {
		return err
	}
	stats["items"] = items
	return c.JSON(stats)
}

// HandleQueueDelete deletes a single job key.
func (ac *AdminController) HandleQueueDelete(c *fiber.Ctx) error {
	key := c.Params("key")
	if !strings.HasPrefix(key, jobqueue.JobKeyPrefix) {
		return fiber.NewError(fiber.StatusBadRequest, "only job keys can be deleted")
	}
	result, err := ac.jobs.DeleteKey(c.UserContext(), key)
	if err != nil {
		return err
	}
	if result == 0 {
		return fiber.NewError(fiber.StatusNotFound, "job not found")
	}
	log.Infof("[Admin] user %d deleted %s", usercontext.GetUserID(c), key)
	return c.SendStatus(fiber.StatusNoContent)
}

func (ac *AdminController) getQueueItems(ctx context.Context) ([]QueueItem, error) {
	keys, err := ac.jobs.FindKeysByPatterns(ctx, []string{jobqueue.JobKeyPrefix + "*"})
	if err != nil {
		return nil, fmt.Errorf("list job keys: %w", err)
	}

	items := make([]QueueItem, 0, len(keys))
	for _, key := range keys {
		value, err := ac.jobs.GetValue(ctx, key)
		if err != nil {
			// expired between SCAN and GET
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		ttl, err := ac.jobs.GetTTL(ctx, key)
		if err != nil {
			ttl = -1
		}

		item := QueueItem{Key: key, JobID: strings.TrimPrefix(key, jobqueue.JobKeyPrefix), Status: "unknown", TTL: ttl / time.Second}
		var job jobqueue.Job
		if err := json.Unmarshal([]byte(value), &job); err == nil {
			item.Type = string(job.Type)
			item.Status = string(job.Status)
			item.Error = job.ErrorMsg
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Status != items[j].Status {
			return items[i].Status < items[j].Status
		}
		return items[i].Key < items[j].Key
	})
	return items, nil
}

// HandleRefund refunds a charge or payment intent on behalf of a customer.
func (ac *AdminController) HandleRefund(c *fiber.Ctx) error {
	var req billing.RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid refund form")
	}
	adminID := usercontext.GetUserID(c)
	ref, err := ac.billing.Refund(c.UserContext(), adminID, req)
	if err != nil {
		return err
	}
	log.Infof("[Admin] user %d issued refund %s", adminID, ref.ProviderRefundID)
	return c.Status(fiber.StatusCreated).JSON(ref)
}

// HandleCatalogSync mirrors products and prices from the provider right away.
func (ac *AdminController) HandleCatalogSync(c *fiber.Ctx) error {
	stats, err := ac.billing.SyncCatalog(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

var adminController *AdminController

// GetAdminController returns the global admin controller instance
func GetAdminController() *AdminController {
	if adminController == nil {
		reg := services.Get()
		adminController = NewAdminController(reg.Repos, reg.Jobs, jobqueue.GetManager().GetQueue(), reg.Billing)
	}
	return adminController
}

func HandleAdminDashboard(c *fiber.Ctx) error {
	return GetAdminController().HandleDashboard(c)
}

func HandleAdminQueues(c *fiber.Ctx) error {
	return GetAdminController().HandleQueues(c)
}

func HandleAdminQueueDelete(c *fiber.Ctx) error {
	return GetAdminController().HandleQueueDelete(c)
}

func HandleAdminRefund(c *fiber.Ctx) error {
	return GetAdminController().HandleRefund(c)
}

func HandleAdminCatalogSync(c *fiber.Ctx) error {
	return GetAdminController().HandleCatalogSync(c)
}
