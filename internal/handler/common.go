package handler

import (
	"net/http"

	"warehouse-billing/internal/middleware"
	"warehouse-billing/pkg/pagination"
	"warehouse-billing/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var (
	readRoles  = []string{middleware.RoleAdmin, middleware.RoleManager, middleware.RoleStaff}
	writeRoles = []string{middleware.RoleAdmin, middleware.RoleManager}
	adminRoles = []string{middleware.RoleAdmin}
)

// fail writes the classified error response for err.
func fail(c *gin.Context, err error) {
	status, body := response.FromError(err)
	c.JSON(status, body)
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.ActorID(c)
	if err != nil {
		fail(c, err)
		return uuid.Nil, false
	}
	return id, true
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, data))
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, data))
}

func paged(c *gin.Context, items interface{}, total int64, p pagination.Params) {
	ok(c, response.Page{Items: items, Total: total, Page: p.Page, Limit: p.Limit})
}
