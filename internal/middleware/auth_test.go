package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, auth *Auth) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/secured", auth.RequireRole(RoleAdmin, RoleManager), func(c *gin.Context) {
		id, err := ActorID(c)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.String(http.StatusOK, id.String())
	})
	return r
}

func do(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/secured", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRole(t *testing.T) {
	auth, err := NewAuth("s3cret", false)
	require.NoError(t, err)
	r := newRouter(t, auth)
	user := uuid.New()

	admin, err := auth.IssueToken(user.String(), RoleAdmin, time.Hour)
	require.NoError(t, err)
	w := do(r, "Bearer "+admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.String(), w.Body.String())

	staff, err := auth.IssueToken(user.String(), RoleStaff, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, "Bearer "+staff).Code)

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Token "+admin).Code)

	other, err := NewAuth("other", false)
	require.NoError(t, err)
	forged, err := other.IssueToken(user.String(), RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer "+forged).Code)

	expired, err := auth.IssueToken(user.String(), RoleAdmin, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer "+expired).Code)
}

func TestRequireRole_SubjectMustBeUUID(t *testing.T) {
	auth, err := NewAuth("s3cret", false)
	require.NoError(t, err)
	token, err := auth.IssueToken("robot", RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, do(newRouter(t, auth), "Bearer "+token).Code)
}

func TestNewAuthRequiresSecretInRelease(t *testing.T) {
	_, err := NewAuth("", true)
	assert.Error(t, err)

	auth, err := NewAuth("", false)
	require.NoError(t, err)
	assert.NotEmpty(t, auth.Secret())
}
