package dashboard

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/crawler"
)

type CrawlRunner interface {
	Run(ctx context.Context, req crawler.Request) (*crawler.Result, error)
}

type Notifier interface {
	Create(ctx context.Context, userID uint, kind, content string, data map[string]interface{}) (*models.Notification, error)
}

// CrawlJob is the payload of a crawl job.
type CrawlJob struct {
	UserID       uint            `json:"user_id"`
	DataSourceID uint            `json:"data_source_id"`
	Request      crawler.Request `json:"request"`
}

// PrepareCrawl validates the form against an owned source and builds the job payload.
// JDBC crawls of database sources reuse the stored credentials.
func (s *Service) PrepareCrawl(id, userID uint, form CrawlForm) (*CrawlJob, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	ds, err := s.sources.GetByIDForUser(id, userID)
	if err != nil {
		return nil, err
	}
	req := crawler.Request{
		Identifier:     ds.Identifier(),
		TargetType:     form.TargetType,
		Path:           form.Path,
		ConnectionName: form.ConnectionName,
	}
	if req.TargetType == crawler.TargetJDBC && req.ConnectionName == "" && ds.IsDB {
		req.JDBCURI = ds.JDBCURI()
		req.SecretID = s.secrets.Name(req.Identifier)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &CrawlJob{UserID: userID, DataSourceID: ds.ID, Request: req}, nil
}

// RunCrawl runs the crawler and tells the user how it went.
func RunCrawl(ctx context.Context, runner CrawlRunner, notifier Notifier, job CrawlJob) error {
	res, err := runner.Run(ctx, job.Request)
	if err != nil {
		log.Errorf("[Crawler] crawl of %s failed: %v", job.Request.Identifier, err)
		if _, nerr := notifier.Create(ctx, job.UserID, models.NotificationTypeCrawl,
			fmt.Sprintf("Crawling %s failed: %v", job.Request.Path, err),
			map[string]interface{}{"data_source_id": job.DataSourceID}); nerr != nil {
			log.Warnf("[Crawler] notify user %d: %v", job.UserID, nerr)
		}
		return err
	}
	_, err = notifier.Create(ctx, job.UserID, models.NotificationTypeCrawl,
		fmt.Sprintf("Crawler %s finished, tables are in %s", res.CrawlerName, res.DatabaseName),
		map[string]interface{}{"data_source_id": job.DataSourceID, "database": res.DatabaseName})
	return err
}
