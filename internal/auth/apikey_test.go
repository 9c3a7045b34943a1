package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		key     string
		headers map[string]string
		want    int
	}{
		{"disabled", "", nil, http.StatusOK},
		{"missing", "s3cret", nil, http.StatusUnauthorized},
		{"wrong", "s3cret", map[string]string{HeaderName: "nope"}, http.StatusForbidden},
		{"header", "s3cret", map[string]string{HeaderName: "s3cret"}, http.StatusOK},
		{"bearer", "s3cret", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"bearer lowercase", "s3cret", map[string]string{"Authorization": "bearer s3cret"}, http.StatusOK},
		{"basic scheme", "s3cret", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(APIKeyMiddleware(tt.key))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
