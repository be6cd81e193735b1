package handler

import (
	"net/http"

	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"
	"warehouse-billing/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type BillingEventHandler struct {
	eventService service.BillingEventService
	auth         *middleware.Auth
}

func NewBillingEventHandler(eventService service.BillingEventService, auth *middleware.Auth) *BillingEventHandler {
	return &BillingEventHandler{eventService: eventService, auth: auth}
}

func (h *BillingEventHandler) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/api/billing-events")
	{
		events.GET("", h.auth.RequireRole(readRoles...), h.ListBillingEvents)
		events.POST("/usage", h.auth.RequireRole(writeRoles...), h.RecordServiceUsage)
		events.DELETE("/usage/:id", h.auth.RequireRole(writeRoles...), h.DeleteServiceUsage)
		events.PUT("/:id/unmark", h.auth.RequireRole(adminRoles...), h.UnmarkEvent)
	}
}

// RecordServiceUsage stores a billing event that does not come from a stock movement
// @Summary      Record direct service usage
// @Tags         billing-events
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RecordUsageRequest  true  "Usage"
// @Success      201      {object}  response.Response{data=service.BillingEventResponse}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/billing-events/usage [post]
func (h *BillingEventHandler) RecordServiceUsage(c *gin.Context) {
	var req service.RecordUsageRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}

	event, err := h.eventService.RecordServiceUsage(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, service.ToBillingEventResponse(*event))
}

func (h *BillingEventHandler) DeleteServiceUsage(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	if err := h.eventService.DeleteServiceUsage(c.Request.Context(), c.Param("id"), actorID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnmarkEvent returns an invoiced event to PENDING
// @Summary      Unmark billing event
// @Description  Allowed while the invoice holding the event is a draft or no longer active
// @Tags         billing-events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Billing event ID"
// @Success      200  {object}  response.Response{data=service.BillingEventResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/billing-events/{id}/unmark [put]
func (h *BillingEventHandler) UnmarkEvent(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	event, err := h.eventService.UnmarkEvent(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToBillingEventResponse(*event))
}

// ListBillingEvents returns billing events filtered by client, status, service and month
// @Summary      List billing events
// @Tags         billing-events
// @Security     BearerAuth
// @Produce      json
// @Param        client_id     query     string  false  "Client ID"
// @Param        status        query     string  false  "PENDING or INVOICED"
// @Param        service_code  query     string  false  "Service code"
// @Param        month         query     string  false  "Billing month (YYYY-MM)"
// @Param        invoice_id    query     string  false  "Invoice ID"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 20)"
// @Success      200           {object}  response.Response{data=response.Page}
// @Router       /api/billing-events [get]
func (h *BillingEventHandler) ListBillingEvents(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.eventService.ListBillingEvents(c.Request.Context(), service.BillingEventQuery{
		ClientID:    c.Query("client_id"),
		Status:      c.Query("status"),
		ServiceCode: c.Query("service_code"),
		Month:       c.Query("month"),
		InvoiceID:   c.Query("invoice_id"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, items, total, p)
}
