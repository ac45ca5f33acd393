package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/billing"
	"github.com/ManuelReschke/saaskit/internal/pkg/crawler"
	"github.com/ManuelReschke/saaskit/internal/pkg/dashboard"
	"github.com/ManuelReschke/saaskit/internal/pkg/mail"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
)

type QueryRunner interface {
	RunQuery(ctx context.Context, req dashboard.QueryRequest) (*models.Message, error)
}

type UserInitializer interface {
	InitializeUser(ctx context.Context, userID uint) (*billing.Schedule, error)
}

// RegisterDefaultHandlers binds every job type to the services in reg.
func RegisterDefaultHandlers(q *Queue, reg *services.Registry) {
	q.RegisterHandler(JobTypeAgentQuery, AgentQueryHandler(reg.Dashboard))
	q.RegisterHandler(JobTypeSendEmail, SendEmailHandler(reg.Mailer))
	q.RegisterHandler(JobTypeBillingInitializeUser, InitializeUserHandler(reg.Billing))
	q.RegisterHandler(JobTypeCrawl, CrawlHandler(reg.Crawler, reg.Notifications))
	// A crawl polls the crawler until it finishes, so it may legitimately stay in processing for hours.
	q.SetMaxProcessingAge(JobTypeCrawl, crawler.MaxRunTime+10*time.Minute)
}

// AgentQueryHandler answers a chat message. Agent failures are already stored
// as replies, so only infrastructure errors reach the retry path.
func AgentQueryHandler(runner QueryRunner) Handler {
	return func(ctx context.Context, job *Job) error {
		var req dashboard.QueryRequest
		if err := job.DecodePayload(&req); err != nil {
			return Permanent(fmt.Errorf("decode agent query: %w", err))
		}
		reply, err := runner.RunQuery(ctx, req)
		if err != nil {
			if errors.Is(err, dashboard.ErrInvalidModel) || errors.Is(err, gorm.ErrRecordNotFound) {
				return Permanent(err)
			}
			return err
		}
		log.Debugf("[JobQueue] agent reply %d stored for source %d", reply.ID, req.DataSourceID)
		return nil
	}
}

// SendEmailHandler renders the envelope and hands it to the mailer.
func SendEmailHandler(mailer mail.Mailer) Handler {
	return func(ctx context.Context, job *Job) error {
		var env mail.Envelope
		if err := job.DecodePayload(&env); err != nil {
			return Permanent(fmt.Errorf("decode email: %w", err))
		}
		if env.To == "" {
			return Permanent(errors.New("email has no recipient"))
		}
		msg, err := mail.Render(ctx, env)
		if err != nil {
			return Permanent(err)
		}
		return mailer.Send(ctx, msg)
	}
}

func InitializeUserHandler(b UserInitializer) Handler {
	return func(ctx context.Context, job *Job) error {
		var p InitializeUserPayload
		if err := job.DecodePayload(&p); err != nil || p.UserID == 0 {
			return Permanent(fmt.Errorf("invalid initialize payload: %v", job.Payload))
		}
		_, err := b.InitializeUser(ctx, p.UserID)
		return err
	}
}

// CrawlHandler never retries: the user has already been notified of the failure.
func CrawlHandler(runner dashboard.CrawlRunner, notifier dashboard.Notifier) Handler {
	return func(ctx context.Context, job *Job) error {
		var cj dashboard.CrawlJob
		if err := job.DecodePayload(&cj); err != nil {
			return Permanent(fmt.Errorf("decode crawl: %w", err))
		}
		return Permanent(dashboard.RunCrawl(ctx, runner, notifier, cj))
	}
}

// CatalogSyncTask mirrors the provider catalog on a fixed interval.
func CatalogSyncTask(b *billing.Service, every time.Duration) PeriodicTask {
	return PeriodicTask{
		Name:     "catalog sync",
		Interval: every,
		Run: func(ctx context.Context) error {
			stats, err := b.SyncCatalog(ctx)
			if err != nil {
				return err
			}
			log.Infof("[JobQueue Manager] catalog synced: %d products, %d prices", stats.Products, stats.Prices)
			return nil
		},
	}
}
