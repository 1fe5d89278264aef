package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func serve(header string) (string, string) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(HeaderKey, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return seen, w.Header().Get(HeaderKey)
}

func TestMiddlewareKeepsCallerID(t *testing.T) {
	seen, echoed := serve("scan-upload-7")
	assert.Equal(t, "scan-upload-7", seen)
	assert.Equal(t, "scan-upload-7", echoed)
}

func TestMiddlewareGeneratesID(t *testing.T) {
	seen, echoed := serve("")
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, echoed)

	seen, _ = serve(strings.Repeat("x", maxLength+1))
	_, err = uuid.Parse(seen)
	assert.NoError(t, err)
}
