package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BridgeAuth(token, "user-1"))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})
	return r
}

func TestBridgeAuth(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		header string
		code   int
	}{
		{name: "disabled", token: "", header: "", code: http.StatusOK},
		{name: "missing", token: "secret", header: "", code: http.StatusUnauthorized},
		{name: "malformed", token: "secret", header: "secret", code: http.StatusUnauthorized},
		{name: "wrong", token: "secret", header: "Bearer nope", code: http.StatusUnauthorized},
		{name: "ok", token: "secret", header: "bearer secret", code: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			setupRouter(tc.token).ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}
