package handler

import (
	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"

	"github.com/gin-gonic/gin"
)

type TaxHandler struct {
	taxService service.TaxService
	auth       *middleware.Auth
}

func NewTaxHandler(taxService service.TaxService, auth *middleware.Auth) *TaxHandler {
	return &TaxHandler{taxService: taxService, auth: auth}
}

func (h *TaxHandler) RegisterRoutes(router *gin.RouterGroup) {
	tax := router.Group("/api/tax-rules")
	{
		tax.GET("", h.auth.RequireRole(readRoles...), h.GetTaxRules)
		tax.POST("", h.auth.RequireRole(adminRoles...), h.CreateTaxRule)
	}
}

// GetTaxRules returns all tax rules ordered by effective_from DESC
func (h *TaxHandler) GetTaxRules(c *gin.Context) {
	rules, err := h.taxService.GetTaxRules(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rules)
}

// CreateTaxRule creates a new tax rule entry
func (h *TaxHandler) CreateTaxRule(c *gin.Context) {
	var req service.CreateTaxRuleRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	rule, err := h.taxService.CreateTaxRule(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, rule)
}
