package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"classsite/internal/authz"
	"classsite/internal/services"
)

type stubVerifier map[string]*services.Claims

func (s stubVerifier) VerifyAccessToken(token string) *services.Claims { return s[token] }

func newRouter(v TokenVerifier, min authz.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	g := r.Group("/", AuthMiddleware(v))
	g.GET("/me", func(c *gin.Context) {
		id, role, _ := Identity(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role})
	})
	g.GET("/staff", RequireRole(min), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuthMiddleware(t *testing.T) {
	v := stubVerifier{
		"student": {UserID: "u1", Role: authz.RoleStudent},
		"teacher": {UserID: "u2", Role: authz.RoleTeacher},
	}
	r := newRouter(v, authz.RoleTeacher)

	tests := []struct {
		name   string
		path   string
		setup  func(*http.Request)
		status int
	}{
		{"no token", "/me", func(*http.Request) {}, http.StatusUnauthorized},
		{"unknown token", "/me", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"basic scheme", "/me", func(r *http.Request) { r.Header.Set("Authorization", "Basic student") }, http.StatusUnauthorized},
		{"bearer", "/me", func(r *http.Request) { r.Header.Set("Authorization", "bearer student") }, http.StatusOK},
		{"cookie", "/me", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "student"}) }, http.StatusOK},
		{"student on staff route", "/staff", func(r *http.Request) { r.Header.Set("Authorization", "Bearer student") }, http.StatusForbidden},
		{"teacher on staff route", "/staff", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "teacher"}) }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole(authz.RoleStudent), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	r := newRouter(stubVerifier{}, authz.RoleAdmin)

	req := httptest.NewRequest(http.MethodOptions, "/me", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials not allowed")
	}

	req = httptest.NewRequest(http.MethodOptions, "/me", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}
