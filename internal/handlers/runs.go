package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/serenitylabs/serenity/internal/analytics"
	"github.com/serenitylabs/serenity/internal/engine"
	"github.com/serenitylabs/serenity/internal/merge"
	"github.com/serenitylabs/serenity/internal/models"
	"github.com/serenitylabs/serenity/internal/services"
	"github.com/serenitylabs/serenity/internal/tabular"
)

// CreateRun handles POST /v1/runs
// Accepts a multipart upload with target, index and commodity files (CSV or
// XLSX) plus optional form fields overriding the run options
func (h *Handler) CreateRun(c *fiber.Ctx) error {
	var query models.CreateRunQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, CodeInvalidRequest, "invalid query: "+err.Error(), nil)
	}

	var opts models.RunOptions
	if err := c.BodyParser(&opts); err != nil {
		return badRequest(c, CodeInvalidRequest, "invalid form: "+err.Error(), nil)
	}
	if err := models.Validate(c.UserContext(), &opts); err != nil {
		return h.respondError(c, err)
	}

	var input engine.Input
	for _, src := range []struct {
		name string
		rows *[]analytics.RawRow
	}{
		{merge.SourceTarget, &input.Target},
		{merge.SourceIndex, &input.Index},
		{merge.SourceCommodity, &input.Commodity},
	} {
		rows, err := readUpload(c, src.name)
		if err != nil {
			return badRequest(c, CodeInvalidFile, err.Error(), map[string]interface{}{
				"source": src.name,
			})
		}
		*src.rows = rows
	}

	return h.startRun(c, services.SourceUpload, input, opts, query.Wait)
}

// CreateRunFromRows handles POST /v1/runs/rows
// Accepts the three sources as JSON arrays of column-keyed rows
func (h *Handler) CreateRunFromRows(c *fiber.Ctx) error {
	var query models.CreateRunQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, CodeInvalidRequest, "invalid query: "+err.Error(), nil)
	}

	var req models.RowsRunRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, CodeInvalidRequest, "invalid request body: "+err.Error(), nil)
	}
	if err := models.Validate(c.UserContext(), &req.Options); err != nil {
		return h.respondError(c, err)
	}

	input := engine.Input{
		Target:    req.Target,
		Index:     req.Index,
		Commodity: req.Commodity,
	}
	return h.startRun(c, services.SourceRows, input, req.Options, query.Wait)
}

// startRun submits the run, or executes it inline when wait is set
func (h *Handler) startRun(c *fiber.Ctx, source string, input engine.Input, opts models.RunOptions, wait bool) error {
	if wait {
		run, err := h.runService.RunSync(c.UserContext(), source, input, opts)
		if err != nil {
			return h.respondError(c, err)
		}
		return c.JSON(run.ToStatusResponse(getBaseURL(c)))
	}

	run, err := h.runService.Submit(c.UserContext(), source, input, opts)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(&models.RunCreateResponse{
		RunID:     run.ID,
		Status:    string(run.Status),
		Message:   "Run accepted. Use the status endpoint to check progress.",
		ExpiresAt: run.ExpiresAt,
		StatusURL: getBaseURL(c) + "/v1/runs/" + run.ID,
	})
}

// readUpload parses one uploaded file. A missing file yields no rows so
// the run service can report which source is absent.
func readUpload(c *fiber.Ctx, field string) ([]analytics.RawRow, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	rows, err := tabular.Read(f, fh.Filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return rows, nil
}

// ListRuns handles GET /v1/runs
func (h *Handler) ListRuns(c *fiber.Ctx) error {
	var query models.ListRunsQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, CodeInvalidRequest, "invalid query: "+err.Error(), nil)
	}
	if err := models.Validate(c.UserContext(), &query); err != nil {
		return h.respondError(c, err)
	}

	runs, err := h.runService.List(c.UserContext(), query.Status, query.Limit)
	if err != nil {
		return h.respondError(c, err)
	}

	baseURL := getBaseURL(c)
	resp := models.RunListResponse{
		Runs:  make([]*models.RunStatusResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, run.ToStatusResponse(baseURL))
	}
	return c.JSON(resp)
}

// GetRun handles GET /v1/runs/:id
func (h *Handler) GetRun(c *fiber.Ctx) error {
	run, err := h.runService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(run.ToStatusResponse(getBaseURL(c)))
}

// GetRunResult handles GET /v1/runs/:id/result
// Returns the full result bundle of a completed run
func (h *Handler) GetRunResult(c *fiber.Ctx) error {
	bundle, err := h.runService.Result(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(bundle)
}

// GetRunForecast handles GET /v1/runs/:id/forecast
// Returns the scenarios of all models side by side, one row per date
func (h *Handler) GetRunForecast(c *fiber.Ctx) error {
	bundle, err := h.runService.Result(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"run_id":  c.Params("id"),
		"columns": engine.ForecastColumns,
		"rows":    engine.ForecastTable(bundle),
	})
}

// GetRunMetrics handles GET /v1/runs/:id/metrics
func (h *Handler) GetRunMetrics(c *fiber.Ctx) error {
	bundle, err := h.runService.Result(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"run_id":     c.Params("id"),
		"metrics":    bundle.Metrics,
		"best_model": bundle.BestModel,
	})
}

// GetRunChart handles GET /v1/runs/:id/chart/:model
func (h *Handler) GetRunChart(c *fiber.Ctx) error {
	chart, err := h.runService.Chart(c.UserContext(), c.Params("id"), c.Params("model"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(chart)
}

// ExportRun handles GET /v1/runs/:id/export?format=csv|xlsx
func (h *Handler) ExportRun(c *fiber.Ctx) error {
	var query models.ExportQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, CodeInvalidRequest, "invalid query: "+err.Error(), nil)
	}
	if err := models.Validate(c.UserContext(), &query); err != nil {
		return h.respondError(c, err)
	}

	data, format, err := h.runService.Export(c.UserContext(), c.Params("id"), query.Format)
	if err != nil {
		return h.respondError(c, err)
	}

	c.Set("Content-Type", format.ContentType())
	c.Set("Content-Disposition", "attachment; filename=\""+format.FileName()+"\"")
	return c.Send(data)
}

// DeleteRun handles DELETE /v1/runs/:id
func (h *Handler) DeleteRun(c *fiber.Ctx) error {
	if err := h.runService.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c *fiber.Ctx) error {
	return c.JSON(models.ModelListResponse{Models: h.runService.Models()})
}

// getBaseURL extracts the base URL from the request
func getBaseURL(c *fiber.Ctx) string {
	scheme := "http"
	if c.Protocol() == "https" || c.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Hostname()
}
