package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
	"github.com/terralens/geosignal/pkg/db/pagination"
)

func (s *Server) LogUsage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req usagedomain.LogUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.UserID = userID

	result, err := s.usageSvc.LogUsage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) GetUsageStats(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	timeframe := usagedomain.Timeframe(c.DefaultQuery("timeframe", string(usagedomain.TimeframeMonth)))
	stats, err := s.usageSvc.GetUserStats(c.Request.Context(), userID, timeframe)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) GetUsageHistory(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	history, err := s.usageSvc.GetHistory(c.Request.Context(), userID, pagination.Pagination{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (s *Server) GetDailyUsage(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	summaries, err := s.usageSvc.GetDailySummaries(c.Request.Context(), userID, days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summaries)
}

func (s *Server) GetCostBreakdown(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	groupBy := usagedomain.GroupBy(c.DefaultQuery("group_by", string(usagedomain.GroupByPurpose)))
	breakdown, err := s.usageSvc.GetCostBreakdown(c.Request.Context(), userID, groupBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) SetUsageAlerts(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req usagedomain.SetAlertsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.UserID = userID

	config, err := s.usageSvc.SetAlerts(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, config)
}
