package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/saaskit/internal/pkg/dashboard"
	"github.com/ManuelReschke/saaskit/internal/pkg/entitlements"
	"github.com/ManuelReschke/saaskit/internal/pkg/jobqueue"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

func HandleDashboardList(c *fiber.Ctx) error {
	sources, err := services.Get().Dashboard.List(usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	plan := usercontext.GetPlan(c)
	return c.JSON(fiber.Map{
		"data_sources": sources,
		"limit":        entitlements.MaxDataSources(plan),
	})
}

// checkSourceLimit rejects the request once the plan's source quota is used up.
func checkSourceLimit(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	sources, err := services.Get().Dashboard.List(userID)
	if err != nil {
		return err
	}
	max := entitlements.MaxDataSources(usercontext.GetPlan(c))
	if len(sources) >= max {
		return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("your plan allows %d data sources", max))
	}
	return nil
}

func HandleDashboardCreateDatabase(c *fiber.Ctx) error {
	if err := checkSourceLimit(c); err != nil {
		return err
	}
	var form dashboard.DatabaseSourceForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid data source form")
	}
	ds, err := services.Get().Dashboard.CreateDatabaseSource(c.UserContext(), usercontext.GetUserID(c), form)
	if err != nil {
		return err
	}
	log.Infof("[Dashboard] user %d added %s source %d", ds.UserID, ds.Protocol, ds.ID)
	return c.Status(fiber.StatusCreated).JSON(ds)
}

func HandleDashboardCreateAPI(c *fiber.Ctx) error {
	if err := checkSourceLimit(c); err != nil {
		return err
	}
	var form dashboard.APISourceForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid data source form")
	}
	ds, err := services.Get().Dashboard.CreateAPISource(c.UserContext(), usercontext.GetUserID(c), form)
	if err != nil {
		return err
	}
	log.Infof("[Dashboard] user %d added api source %d", ds.UserID, ds.ID)
	return c.Status(fiber.StatusCreated).JSON(ds)
}

func HandleDashboardShow(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ds, msgs, err := services.Get().Dashboard.Get(id, usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data_source": ds, "messages": msgs})
}

func HandleDashboardDelete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := services.Get().Dashboard.Delete(c.UserContext(), id, usercontext.GetUserID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleDashboardChat stores the question and hands the answer off to the agent_query job.
func HandleDashboardChat(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var form dashboard.ChatForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat form")
	}
	if !entitlements.AllowsModel(usercontext.GetPlan(c), form.Model) {
		return fiber.NewError(fiber.StatusForbidden, "your plan does not include "+form.Model)
	}

	userID := usercontext.GetUserID(c)
	msg, err := services.Get().Dashboard.PostMessage(c.UserContext(), id, userID, form)
	if err != nil {
		return err
	}
	job, err := enqueue(jobqueue.JobTypeAgentQuery, dashboard.QueryRequest{
		DataSourceID: id,
		UserID:       userID,
		MessageID:    msg.ID,
		Model:        form.Model,
		Question:     form.Message,
	})
	if err != nil {
		log.Errorf("[Dashboard] enqueue query for source %d: %v", id, err)
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID, "msg_id": msg.ID})
}

func HandleDashboardCrawl(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var form dashboard.CrawlForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid crawl form")
	}
	crawl, err := services.Get().Dashboard.PrepareCrawl(id, usercontext.GetUserID(c), form)
	if err != nil {
		return err
	}
	job, err := enqueue(jobqueue.JobTypeCrawl, crawl)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID})
}
