package handler

import (
	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"
	"warehouse-billing/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	auth           *middleware.Auth
}

func NewInvoiceHandler(invoiceService service.InvoiceService, auth *middleware.Auth) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, auth: auth}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.POST("/generate", h.auth.RequireRole(writeRoles...), h.GenerateInvoice)
		invoices.GET("", h.auth.RequireRole(readRoles...), h.ListInvoices)
		invoices.GET("/:id", h.auth.RequireRole(readRoles...), h.GetInvoice)
		invoices.PUT("/:id/issue", h.auth.RequireRole(writeRoles...), h.IssueInvoice)
		invoices.PUT("/:id/paid", h.auth.RequireRole(writeRoles...), h.MarkPaid)
		invoices.POST("/:id/duplicate", h.auth.RequireRole(writeRoles...), h.DuplicateInvoice)
	}
}

// GenerateInvoice aggregates a client's pending billing events into a draft invoice
// @Summary      Generate monthly invoice
// @Description  Builds the KRW draft invoice of a client and month from its PENDING billing events
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.GenerateInvoiceRequest  true  "Client and month"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/invoices/generate [post]
func (h *InvoiceHandler) GenerateInvoice(c *gin.Context) {
	var req service.GenerateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}

	invoice, err := h.invoiceService.Generate(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, service.ToInvoiceResponse(*invoice))
}

// ListInvoices returns a paginated list of invoices
// @Summary      List invoices
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        client_id  query     string  false  "Client ID"
// @Param        month      query     string  false  "Billing month (YYYY-MM)"
// @Param        status     query     string  false  "draft, issued or paid"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=response.Page}
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)
	invoices, total, err := h.invoiceService.List(c.Request.Context(), service.InvoiceQuery{
		ClientID: c.Query("client_id"),
		Month:    c.Query("month"),
		Status:   c.Query("status"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, invoices, total, p)
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToInvoiceResponse(*invoice))
}

// IssueInvoice moves a draft invoice to issued
// @Summary      Issue invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/invoices/{id}/issue [put]
func (h *InvoiceHandler) IssueInvoice(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	invoice, err := h.invoiceService.Issue(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToInvoiceResponse(*invoice))
}

// MarkPaid moves an issued invoice to paid
// @Summary      Mark invoice paid
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/invoices/{id}/paid [put]
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	invoice, err := h.invoiceService.MarkPaid(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToInvoiceResponse(*invoice))
}

func (h *InvoiceHandler) DuplicateInvoice(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	invoice, err := h.invoiceService.Duplicate(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, service.ToInvoiceResponse(*invoice))
}
