package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func request(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/notices", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(method, "/notices", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowListed(t *testing.T) {
	rec := request([]string{"https://portal.uni.edu/"}, http.MethodGet, "https://portal.uni.edu")
	assert.Equal(t, "https://portal.uni.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	rec = request([]string{"https://portal.uni.edu"}, http.MethodGet, "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowAllWithoutCredentials(t *testing.T) {
	rec := request(nil, http.MethodGet, "https://anything.example")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSPreflight(t *testing.T) {
	rec := request(nil, http.MethodOptions, "https://portal.uni.edu")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
