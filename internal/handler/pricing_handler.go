package handler

import (
	"net/http"

	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/service"
	"warehouse-billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type PricingHandler struct {
	priceService service.PriceService
	auth         *middleware.Auth
}

func NewPricingHandler(priceService service.PriceService, auth *middleware.Auth) *PricingHandler {
	return &PricingHandler{priceService: priceService, auth: auth}
}

func (h *PricingHandler) RegisterRoutes(router *gin.RouterGroup) {
	services := router.Group("/api/billable-services")
	{
		services.GET("", h.auth.RequireRole(readRoles...), h.ListServices)
		services.POST("", h.auth.RequireRole(adminRoles...), h.CreateService)
	}

	policies := router.Group("/api/price-policies")
	{
		policies.GET("", h.auth.RequireRole(readRoles...), h.ListPricePolicies)
		policies.POST("", h.auth.RequireRole(adminRoles...), h.CreatePricePolicy)
	}
}

func (h *PricingHandler) ListServices(c *gin.Context) {
	services, err := h.priceService.ListServices(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, services)
}

func (h *PricingHandler) CreateService(c *gin.Context) {
	var req service.CreateServiceRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	svc, err := h.priceService.CreateService(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, svc)
}

// ListPricePolicies returns every contract rate of a client
// @Summary      List price policies
// @Tags         pricing
// @Security     BearerAuth
// @Produce      json
// @Param        client_id  query     string  true  "Client ID"
// @Success      200        {object}  response.Response{data=[]service.PricePolicyResponse}
// @Failure      400        {object}  response.Response
// @Router       /api/price-policies [get]
func (h *PricingHandler) ListPricePolicies(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "client_id is required"))
		return
	}
	policies, err := h.priceService.ListPricePolicies(c.Request.Context(), clientID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, policies)
}

// CreatePricePolicy adds a contract rate for a client and service
// @Summary      Create price policy
// @Tags         pricing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePricePolicyRequest  true  "Price policy"
// @Success      201      {object}  response.Response{data=service.PricePolicyResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/price-policies [post]
func (h *PricingHandler) CreatePricePolicy(c *gin.Context) {
	var req service.CreatePricePolicyRequest
	if !bindJSON(c, &req) {
		return
	}
	actorID, valid := actor(c)
	if !valid {
		return
	}
	policy, err := h.priceService.CreatePricePolicy(c.Request.Context(), req, actorID)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, policy)
}
