package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/dashboard"
)

// handleOverview returns the caller's metrics, stats and monthly series
// GET /api/dashboard/overview
func (s *Server) handleOverview(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Dashboard.Overview(c.Request.Context(), auth.GetUserID(c)))
}

// handlePLChart renders the monthly P/L chart
// GET /api/dashboard/charts/pl.png
func (s *Server) handlePLChart(c *gin.Context) {
	png, err := s.deps.Dashboard.PLChart(c.Request.Context(), auth.GetUserID(c))
	s.writeChart(c, png, err)
}

// handleROIChart renders the monthly ROI chart
// GET /api/dashboard/charts/roi.png
func (s *Server) handleROIChart(c *gin.Context) {
	png, err := s.deps.Dashboard.ROIChart(c.Request.Context(), auth.GetUserID(c))
	s.writeChart(c, png, err)
}

func (s *Server) writeChart(c *gin.Context, png []byte, err error) {
	if errors.Is(err, analytics.ErrNoChartData) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		internalError(c, err, "failed to render chart")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// handleTradeHistory returns the caller's trades filtered by date
// GET /api/trades?start=YYYY-MM-DD&end=YYYY-MM-DD&today=bool&month=bool
func (s *Server) handleTradeHistory(c *gin.Context) {
	q, err := parseHistoryQuery(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.deps.Dashboard.History(c.Request.Context(), auth.GetUserID(c), q))
}

// handleAdminTradeHistory returns every client's trades filtered by date and client name
// GET /api/admin/trades?start&end&client&today&month
func (s *Server) handleAdminTradeHistory(c *gin.Context) {
	q, err := parseHistoryQuery(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	q.Client = c.Query("client")
	c.JSON(http.StatusOK, s.deps.Dashboard.AdminHistory(c.Request.Context(), q))
}

// handleAdminOverview returns metrics over every client's trades
// GET /api/admin/overview
func (s *Server) handleAdminOverview(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Dashboard.AdminOverview(c.Request.Context()))
}

func parseHistoryQuery(c *gin.Context) (dashboard.HistoryQuery, error) {
	var q dashboard.HistoryQuery
	var err error
	if q.Start, err = parseDay(c.Query("start")); err != nil {
		return q, fmt.Errorf("start: %w", err)
	}
	if q.End, err = parseDay(c.Query("end")); err != nil {
		return q, fmt.Errorf("end: %w", err)
	}
	if q.Today, err = parseFlag(c, "today"); err != nil {
		return q, err
	}
	if q.Month, err = parseFlag(c, "month"); err != nil {
		return q, err
	}
	return q, nil
}

// parseFlag reads an optional boolean query parameter
func parseFlag(c *gin.Context, name string) (bool, error) {
	v := c.Query(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: expected a boolean, got %q", name, v)
	}
	return b, nil
}

// parseDay reads an optional YYYY-MM-DD bound
func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(analytics.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return &d, nil
}
