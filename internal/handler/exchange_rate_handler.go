package handler

import (
	"net/http"

	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"
	"warehouse-billing/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type ExchangeRateHandler struct {
	rateService service.ExchangeRateService
	auth        *middleware.Auth
}

func NewExchangeRateHandler(rateService service.ExchangeRateService, auth *middleware.Auth) *ExchangeRateHandler {
	return &ExchangeRateHandler{rateService: rateService, auth: auth}
}

func (h *ExchangeRateHandler) RegisterRoutes(router *gin.RouterGroup) {
	rates := router.Group("/api/exchange-rates")
	{
		rates.GET("", h.auth.RequireRole(readRoles...), h.ListRates)
		rates.GET("/:id", h.auth.RequireRole(readRoles...), h.GetRate)
		rates.POST("", h.auth.RequireRole(writeRoles...), h.CreateRate)
		rates.PUT("/:id", h.auth.RequireRole(writeRoles...), h.UpdateRate)
		rates.DELETE("/:id", h.auth.RequireRole(writeRoles...), h.DeleteRate)
		rates.PUT("/:id/lock", h.auth.RequireRole(adminRoles...), h.LockRate)
	}
}

// ListRates returns exchange rates newest first
// @Summary      List exchange rates
// @Tags         exchange-rates
// @Security     BearerAuth
// @Produce      json
// @Param        base   query     string  false  "Base currency (THB)"
// @Param        quote  query     string  false  "Quote currency (KRW)"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/exchange-rates [get]
func (h *ExchangeRateHandler) ListRates(c *gin.Context) {
	p := pagination.Parse(c)
	rates, total, err := h.rateService.List(c.Request.Context(), c.Query("base"), c.Query("quote"), p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, rates, total, p)
}

func (h *ExchangeRateHandler) GetRate(c *gin.Context) {
	rate, err := h.rateService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rate)
}

// CreateRate registers the rate of a currency pair for one date
// @Summary      Create exchange rate
// @Tags         exchange-rates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateExchangeRateRequest  true  "Rate"
// @Success      201      {object}  response.Response{data=model.ExchangeRate}
// @Failure      409      {object}  response.Response
// @Router       /api/exchange-rates [post]
func (h *ExchangeRateHandler) CreateRate(c *gin.Context) {
	var req service.CreateExchangeRateRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	rate, err := h.rateService.Create(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, rate)
}

// UpdateRate edits a rate no invoice has used yet
// @Summary      Update exchange rate
// @Tags         exchange-rates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                             true  "Exchange rate ID"
// @Param        payload  body      service.UpdateExchangeRateRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=model.ExchangeRate}
// @Failure      423      {object}  response.Response
// @Router       /api/exchange-rates/{id} [put]
func (h *ExchangeRateHandler) UpdateRate(c *gin.Context) {
	var req service.UpdateExchangeRateRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	rate, err := h.rateService.Update(c.Request.Context(), c.Param("id"), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rate)
}

func (h *ExchangeRateHandler) DeleteRate(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	if err := h.rateService.Delete(c.Request.Context(), c.Param("id"), actorID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ExchangeRateHandler) LockRate(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	rate, err := h.rateService.LockRate(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rate)
}
