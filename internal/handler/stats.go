package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/waflens/waflens/internal/repository"
	"github.com/waflens/waflens/internal/response"
)

const (
	defaultTopN   = 10
	maxTopN       = 100
	defaultWindow = 30 * 24 * time.Hour
)

// StatsHandler serves read-only views over the rollup tables. It never
// scans the events table except for the summary's total count.
type StatsHandler struct {
	RollupRepo *repository.RollupRepository
	EventRepo  *repository.EventRepository
	UploadRepo *repository.UploadRepository
}

// Summary returns overall totals (GET /api/stats/summary).
func (h *StatsHandler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	events, err := h.EventRepo.CountAll(ctx)
	if err != nil {
		return response.InternalError(c, "count events failed", err.Error())
	}
	uploads, err := h.UploadRepo.List(ctx)
	if err != nil {
		return response.InternalError(c, "list uploads failed", err.Error())
	}
	actions, err := h.RollupRepo.ActionTotals(ctx)
	if err != nil {
		return response.InternalError(c, "action totals failed", err.Error())
	}
	return response.OK(c, map[string]any{
		"events":  events,
		"uploads": len(uploads),
		"actions": actions,
	}, "")
}

// Daily returns daily action counts (GET /api/stats/daily?from=&to=).
// Dates are YYYY-MM-DD; the default window is the last 30 days.
func (h *StatsHandler) Daily(c echo.Context) error {
	to := time.Now().UTC()
	from := to.Add(-defaultWindow)
	if s := c.QueryParam("from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return response.BadRequest(c, "invalid 'from' date", err.Error())
		}
		from = t
	}
	if s := c.QueryParam("to"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return response.BadRequest(c, "invalid 'to' date", err.Error())
		}
		to = t
	}
	rows, err := h.RollupRepo.Daily(c.Request().Context(), from, to)
	if err != nil {
		return response.InternalError(c, "daily stats failed", err.Error())
	}
	return response.OK(c, map[string]any{"daily": rows}, "")
}

// Rules returns the most-hit rules (GET /api/stats/rules?limit=).
func (h *StatsHandler) Rules(c echo.Context) error {
	rows, err := h.RollupRepo.TopRules(c.Request().Context(), limitParam(c))
	if err != nil {
		return response.InternalError(c, "rule stats failed", err.Error())
	}
	return response.OK(c, map[string]any{"rules": rows}, "")
}

// Sources returns the most active source IPs (GET /api/stats/sources?limit=).
func (h *StatsHandler) Sources(c echo.Context) error {
	rows, err := h.RollupRepo.TopSources(c.Request().Context(), limitParam(c))
	if err != nil {
		return response.InternalError(c, "source stats failed", err.Error())
	}
	return response.OK(c, map[string]any{"sources": rows}, "")
}

// Paths returns the most-hit paths (GET /api/stats/paths?limit=).
func (h *StatsHandler) Paths(c echo.Context) error {
	rows, err := h.RollupRepo.TopPaths(c.Request().Context(), limitParam(c))
	if err != nil {
		return response.InternalError(c, "path stats failed", err.Error())
	}
	return response.OK(c, map[string]any{"paths": rows}, "")
}

// Rebuild regenerates every rollup from the events table
// (POST /api/stats/rebuild). Operational escape hatch after bulk
// deletes or rollup drift.
func (h *StatsHandler) Rebuild(c echo.Context) error {
	if err := h.RollupRepo.RebuildAll(c.Request().Context()); err != nil {
		return response.InternalError(c, "rollup rebuild failed", err.Error())
	}
	return response.OK(c, nil, "rollups rebuilt")
}

func limitParam(c echo.Context) int {
	limit := defaultTopN
	if s := c.QueryParam("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxTopN {
		limit = maxTopN
	}
	return limit
}
