package handler

import (
	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"
	"warehouse-billing/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	settlementService service.SettlementService
	auth              *middleware.Auth
}

func NewSettlementHandler(settlementService service.SettlementService, auth *middleware.Auth) *SettlementHandler {
	return &SettlementHandler{settlementService: settlementService, auth: auth}
}

func (h *SettlementHandler) RegisterRoutes(router *gin.RouterGroup) {
	batches := router.Group("/api/settlements")
	{
		batches.POST("/generate", h.auth.RequireRole(writeRoles...), h.GenerateBatch)
		batches.GET("", h.auth.RequireRole(readRoles...), h.ListBatches)
		batches.GET("/:id", h.auth.RequireRole(readRoles...), h.GetBatch)
		batches.POST("/:id/invoice", h.auth.RequireRole(writeRoles...), h.IssueInvoice)
		batches.PUT("/:id/close", h.auth.RequireRole(writeRoles...), h.CloseBatch)
		batches.POST("/:id/reopen-requests", h.auth.RequireRole(writeRoles...), h.RequestReopen)
	}

	requests := router.Group("/api/settlement-reopen-requests")
	requests.Use(h.auth.RequireRole(adminRoles...))
	{
		requests.PUT("/:id/approve", h.ApproveReopen)
		requests.PUT("/:id/reject", h.RejectReopen)
	}
}

// GenerateBatch rebuilds the settlement batch of a client and month
// @Summary      Generate settlement batch
// @Tags         settlements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.GenerateSettlementRequest  true  "Client and month"
// @Success      200      {object}  response.Response{data=service.SettlementBatchResponse}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/settlements/generate [post]
func (h *SettlementHandler) GenerateBatch(c *gin.Context) {
	var req service.GenerateSettlementRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	batch, err := h.settlementService.Generate(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToSettlementBatchResponse(*batch))
}

func (h *SettlementHandler) ListBatches(c *gin.Context) {
	p := pagination.Parse(c)
	batches, total, err := h.settlementService.ListBatches(c.Request.Context(), service.SettlementQuery{
		ClientID: c.Query("client_id"),
		Status:   c.Query("status"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, batches, total, p)
}

func (h *SettlementHandler) GetBatch(c *gin.Context) {
	batch, err := h.settlementService.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, batch)
}

// IssueInvoice converts a reviewed or closed batch into a draft invoice
// @Summary      Issue invoice from settlement batch
// @Description  Idempotent: a batch already converted returns its existing invoice
// @Tags         settlements
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Settlement batch ID"
// @Success      201  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/settlements/{id}/invoice [post]
func (h *SettlementHandler) IssueInvoice(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	invoice, err := h.settlementService.IssueInvoice(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, service.ToInvoiceResponse(*invoice))
}

func (h *SettlementHandler) CloseBatch(c *gin.Context) {
	actorID, valid := actor(c)
	if !valid {
		return
	}
	batch, err := h.settlementService.Close(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToSettlementBatchResponse(*batch))
}

// RequestReopen asks for a closed batch to be reopened
// @Summary      Request batch reopen
// @Tags         settlements
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Settlement batch ID"
// @Param        payload  body      service.ReopenRequestInput  true  "Reason"
// @Success      201      {object}  response.Response{data=service.ReopenRequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/settlements/{id}/reopen-requests [post]
func (h *SettlementHandler) RequestReopen(c *gin.Context) {
	var in service.ReopenRequestInput
	if !bindJSON(c, &in) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	req, err := h.settlementService.RequestReopen(c.Request.Context(), c.Param("id"), in, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, service.ToReopenRequestResponse(*req))
}

func (h *SettlementHandler) ApproveReopen(c *gin.Context) {
	var in service.ReopenDecisionInput
	// the note is optional
	_ = c.ShouldBindJSON(&in)
	actorID, valid := actor(c)
	if !valid {
		return
	}
	batch, err := h.settlementService.ApproveReopen(c.Request.Context(), c.Param("id"), in, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToSettlementBatchResponse(*batch))
}

func (h *SettlementHandler) RejectReopen(c *gin.Context) {
	var in service.ReopenDecisionInput
	_ = c.ShouldBindJSON(&in)
	actorID, valid := actor(c)
	if !valid {
		return
	}
	req, err := h.settlementService.RejectReopen(c.Request.Context(), c.Param("id"), in, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToReopenRequestResponse(*req))
}
