package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matchcall/internal/auth"
	"matchcall/internal/config"
	"matchcall/internal/httpapi"

	"github.com/gin-gonic/gin"
)

func newAuthRouter(t *testing.T, production bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	r := gin.New()
	registerAuthRoutes(r, httpapi.Handlers{Auth: am}, production)
	return r
}

func login(r *gin.Engine) int {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"user_id":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRegisterAuthRoutes_LoginOnlyOutsideProduction(t *testing.T) {
	if code := login(newAuthRouter(t, false)); code != http.StatusOK {
		t.Fatalf("expected login to work outside production, got %d", code)
	}
	if code := login(newAuthRouter(t, true)); code != http.StatusNotFound {
		t.Fatalf("expected no login route in production, got %d", code)
	}
}

func TestRegisterAuthRoutes_RefreshAlwaysRegistered(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refresh_token":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newAuthRouter(t, true).ServeHTTP(w, req)
	if w.Code == http.StatusNotFound {
		t.Fatalf("refresh must be registered in production")
	}
}
