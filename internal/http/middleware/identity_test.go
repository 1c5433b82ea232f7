package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFarmerID_Precedence(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/farmers/:farmer_id/x", func(c *gin.Context) { c.String(http.StatusOK, FarmerID(c)) })
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, FarmerID(c)) })

	cases := []struct {
		target, header, want string
	}{
		{"/farmers/path-f/x?farmer_id=query-f", "header-f", "path-f"},
		{"/x?farmer_id=%20query-f%20", "header-f", "query-f"},
		{"/x", " header-f ", "header-f"},
		{"/x", "", ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set(HeaderFarmerID, tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Body.String() != tc.want {
			t.Fatalf("%s (header %q) = %q; want %q", tc.target, tc.header, w.Body.String(), tc.want)
		}
	}
}
