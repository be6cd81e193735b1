package handler

import (
	"net/http"
	"strconv"

	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"
	"warehouse-billing/pkg/pagination"
	"warehouse-billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type StockHandler struct {
	movementService service.MovementService
	auth            *middleware.Auth
}

func NewStockHandler(movementService service.MovementService, auth *middleware.Auth) *StockHandler {
	return &StockHandler{movementService: movementService, auth: auth}
}

func (h *StockHandler) RegisterRoutes(router *gin.RouterGroup) {
	stock := router.Group("/api/stock")
	{
		stock.POST("/movements", h.auth.RequireRole(writeRoles...), h.PostMovement)
		stock.POST("/movements/reverse", h.auth.RequireRole(writeRoles...), h.ReverseMovement)
		stock.GET("/movements", h.auth.RequireRole(readRoles...), h.ListMovements)
		stock.GET("/balances", h.auth.RequireRole(readRoles...), h.ListBalances)
		stock.GET("/balances/lookup", h.auth.RequireRole(readRoles...), h.GetBalance)
		stock.GET("/balances/verify", h.auth.RequireRole(adminRoles...), h.VerifyBalance)
	}
}

// PostMovement creates or re-posts a stock movement line
// @Summary      Post stock movement
// @Description  Creates the movement identified by (txn_type, reference_type, reference_id) or re-posts it with new values
// @Tags         stock
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PostMovementRequest  true  "Movement"
// @Success      200      {object}  response.Response{data=service.MovementResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/stock/movements [post]
func (h *StockHandler) PostMovement(c *gin.Context) {
	var req service.PostMovementRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}

	txn, err := h.movementService.PostMovement(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, service.ToMovementResponse(*txn))
}

// ReverseMovement undoes a posted line
// @Summary      Reverse stock movement
// @Tags         stock
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ReverseMovementRequest  true  "Line to reverse"
// @Success      204
// @Failure      404      {object}  response.Response
// @Router       /api/stock/movements/reverse [post]
func (h *StockHandler) ReverseMovement(c *gin.Context) {
	var req service.ReverseMovementRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	if err := h.movementService.ReverseLine(c.Request.Context(), req, actorID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMovements returns posted movement lines
// @Summary      List stock movements
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        client_id       query     string  false  "Client ID"
// @Param        reference_type  query     string  false  "Reference type"
// @Param        reference_id    query     string  false  "Reference ID"
// @Param        include_all     query     bool    false  "Include reversed lines"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Number of items per page (default 20)"
// @Success      200             {object}  response.Response{data=response.Page}
// @Router       /api/stock/movements [get]
func (h *StockHandler) ListMovements(c *gin.Context) {
	p := pagination.Parse(c)
	includeAll, _ := strconv.ParseBool(c.DefaultQuery("include_all", "false"))

	items, total, err := h.movementService.ListMovements(c.Request.Context(), service.MovementQuery{
		ClientID:      c.Query("client_id"),
		ReferenceType: c.Query("reference_type"),
		ReferenceID:   c.Query("reference_id"),
		IncludeAll:    includeAll,
		Page:          p.Page,
		Limit:         p.Limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, items, total, p)
}

func (h *StockHandler) ListBalances(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "client_id is required"))
		return
	}
	p := pagination.Parse(c)

	items, total, err := h.movementService.ListBalances(c.Request.Context(), clientID, p.Page, p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	paged(c, items, total, p)
}

func (h *StockHandler) GetBalance(c *gin.Context) {
	key, err := service.ParseStockKey(c.Query("client_id"), c.Query("product_id"), c.Query("lot_id"),
		c.Query("warehouse_id"), c.Query("location_id"))
	if err != nil {
		fail(c, err)
		return
	}
	balance, err := h.movementService.GetBalance(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, balance)
}

// VerifyBalance compares the stored balance with the sum of its ledger lines.
func (h *StockHandler) VerifyBalance(c *gin.Context) {
	key, err := service.ParseStockKey(c.Query("client_id"), c.Query("product_id"), c.Query("lot_id"),
		c.Query("warehouse_id"), c.Query("location_id"))
	if err != nil {
		fail(c, err)
		return
	}
	check, err := h.movementService.VerifyBalance(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, check)
}
