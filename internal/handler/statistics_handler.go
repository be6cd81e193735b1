package handler

import (
	"strconv"

	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	auth              *middleware.Auth
}

func NewStatisticsHandler(statisticsService service.StatisticsService, auth *middleware.Auth) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, auth: auth}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/api/statistics")
	{
		statsGroup.GET("/billing", h.auth.RequireRole(middleware.RoleAdmin, middleware.RoleManager), h.GetBillingStatistics)
	}
}

// @Summary      Get billing statistics
// @Description  Invoiced revenue per month, top billed services and pending event count for a month range
// @Tags         statistics
// @Produce      json
// @Param        client_id   query  string  false  "Client ID"
// @Param        from_month  query  string  false  "First month (YYYY-MM), defaults to to_month"
// @Param        to_month    query  string  false  "Last month (YYYY-MM), defaults to the current month"
// @Param        limit       query  int     false  "Number of top services (default 5)"
// @Success      200  {object}  response.Response{data=model.BillingStatistics}
// @Failure      400  {object}  response.Response
// @Security     BearerAuth
// @Router       /api/statistics/billing [get]
func (h *StatisticsHandler) GetBillingStatistics(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))

	stats, err := h.statisticsService.GetBillingStatistics(c.Request.Context(), service.StatisticsQuery{
		ClientID:  c.Query("client_id"),
		FromMonth: c.Query("from_month"),
		ToMonth:   c.Query("to_month"),
		Limit:     limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}
