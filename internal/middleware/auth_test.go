package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/services"
)

type stubIdentityService struct {
	identity *services.Identity
	err      error
}

func (s *stubIdentityService) VerifyToken(token string) (*services.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func newAuthRouter(t *testing.T, identity services.IdentityService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	router := gin.New()
	router.GET("/protected", RequireAuth(log, identity), func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.String(http.StatusInternalServerError, "no identity")
			return
		}
		c.String(http.StatusOK, id.UserID)
	})
	return router
}

func doAuthGet(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	router := newAuthRouter(t, &stubIdentityService{identity: &services.Identity{UserID: "user-1"}})

	rec := doAuthGet(router, "Bearer good-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if rec.Body.String() != "user-1" {
		t.Errorf("identity not propagated: %q", rec.Body.String())
	}
}

func TestRequireAuthRejections(t *testing.T) {
	cases := []struct {
		name          string
		authorization string
		verifyErr     error
	}{
		{"missing header", "", nil},
		{"not bearer", "Basic dXNlcjpwdw==", nil},
		{"no token", "Bearer", nil},
		{"invalid token", "Bearer bad-token", errors.New("invalid token")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newAuthRouter(t, &stubIdentityService{
				identity: &services.Identity{UserID: "user-1"},
				err:      tc.verifyErr,
			})
			rec := doAuthGet(router, tc.authorization)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status: got %d", rec.Code)
			}
		})
	}
}
