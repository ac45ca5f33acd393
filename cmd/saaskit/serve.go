package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/saaskit/app/controllers"
	"github.com/ManuelReschke/saaskit/internal/pkg/cache"
	"github.com/ManuelReschke/saaskit/internal/pkg/database"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/jobqueue"
	"github.com/ManuelReschke/saaskit/internal/pkg/router"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
)

const shutdownTimeout = 10 * time.Second

// bootstrap connects the stores and publishes the service registry.
func bootstrap(ctx context.Context) (*services.Registry, error) {
	env.SetupEnvFile()
	if err := database.SetupDatabase(); err != nil {
		return nil, err
	}
	cache.SetupCache()

	reg, err := services.Build(ctx, database.GetDB(), cache.GetClient())
	if err != nil {
		return nil, err
	}
	services.Set(reg)
	return reg, nil
}

// wireJobs hands the asynchronous side effects of the services to the queue.
func wireJobs(reg *services.Registry, q *jobqueue.Queue) {
	dispatcher := jobqueue.NewMailDispatcher(q)
	reg.Accounts.SetMailDispatcher(dispatcher)
	reg.Billing.SetMailDispatcher(dispatcher)
	reg.Accounts.OnRegister(func(ctx context.Context, userID uint) error {
		_, err := q.Enqueue(jobqueue.JobTypeBillingInitializeUser, jobqueue.InitializeUserPayload{UserID: userID})
		return err
	})
	jobqueue.RegisterDefaultHandlers(q, reg)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	manager := jobqueue.GetManager()
	wireJobs(reg, manager.GetQueue())
	if !noWorkers {
		if reg.BillingConfig.Enabled {
			manager.AddTask(jobqueue.CatalogSyncTask(reg.Billing, env.GetEnvDuration("BILLING_CATALOG_SYNC_INTERVAL", 6*time.Hour)))
		}
		manager.Start()
		defer manager.Stop()
	}

	app := NewApplication()
	go func() {
		<-ctx.Done()
		log.Info("[HTTP] shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Errorf("[HTTP] shutdown: %v", err)
		}
	}()

	return app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
}

func NewApplication() *fiber.App {
	// init fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: controllers.ErrorHandler,
		BodyLimit:    8 * 1024 * 1024,
	})

	// ignore favicon
	app.Use(favicon.New())

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	metricsAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	})
	app.Get("/metrics", metricsAuth, monitor.New())
	app.Get("/metrics/prometheus", metricsAuth, adaptor.HTTPHandler(promhttp.Handler()))

	// static files
	app.Static("/", "./public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}

func runSyncPrices(cmd *cobra.Command, _ []string) error {
	reg, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer reg.Close()

	stats, err := reg.Billing.SyncCatalog(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	log.Infof("[Billing] catalog synced: %d products, %d prices", stats.Products, stats.Prices)
	return nil
}
