package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smarttv-backend/internal/auth"
	"smarttv-backend/internal/calls"
	"smarttv-backend/internal/config"
	"smarttv-backend/internal/httpapi"
	"smarttv-backend/internal/reconcile"
	"smarttv-backend/internal/reporting"
	"smarttv-backend/internal/rooms"
	"smarttv-backend/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type noRooms struct{}

func (noRooms) Snapshot(ctx context.Context, name string) (rooms.Snapshot, error) {
	return rooms.Snapshot{}, nil
}

func testServer(t *testing.T) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	store := calls.NewMemoryStore()
	engine := reconcile.NewEngine(store, noRooms{}, reconcile.Options{})
	h := httpapi.Handlers{
		Sync:    scheduler.New(engine, scheduler.Options{Interval: time.Hour}),
		Calls:   calls.NewService(store),
		Reports: reporting.NewService(store),
	}

	r := gin.New()
	registerRoutes(r, h, auth.RequireAccessToken(m))
	return r, m
}

func request(t *testing.T, r http.Handler, m *auth.Manager, method, path, role string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		tok, err := m.Issue(time.Now(), "u-"+role, role)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRoutes_AccessControl(t *testing.T) {
	r, m := testServer(t)

	cases := []struct {
		method, path, role string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodPost, "/v1/admin/sync/trigger", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/admin/sync/trigger", "user", http.StatusForbidden},
		{http.MethodPost, "/v1/admin/sync/trigger", "admin", http.StatusOK},
		{http.MethodGet, "/v1/admin/sync/status", "sync_operator", http.StatusOK},
		{http.MethodGet, "/v1/admin/calls/summary", "sync_operator", http.StatusForbidden},
		{http.MethodGet, "/v1/admin/calls/summary", "super_admin", http.StatusOK},
		{http.MethodPost, "/v1/calls/nope/end", "user", http.StatusNotFound},
		{http.MethodPost, "/v1/calls/nope/end", "sync_operator", http.StatusForbidden},
	}
	for _, tc := range cases {
		if got := request(t, r, m, tc.method, tc.path, tc.role); got != tc.want {
			t.Fatalf("%s %s as %q: expected %d, got %d", tc.method, tc.path, tc.role, tc.want, got)
		}
	}
}

func TestRoutes_WebhookMountedOnlyWhenConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	off := gin.New()
	registerRoutes(off, httpapi.Handlers{}, auth.RequireAccessToken(m))
	if got := request(t, off, m, http.MethodPost, "/webhooks/twilio/rooms", ""); got != http.StatusNotFound {
		t.Fatalf("expected 404 without webhook config, got %d", got)
	}

	on := gin.New()
	registerRoutes(on, httpapi.Handlers{WebhookAuthToken: "tok", WebhookURL: "https://example.com/webhooks/twilio/rooms"}, auth.RequireAccessToken(m))
	if got := request(t, on, m, http.MethodPost, "/webhooks/twilio/rooms", ""); got != http.StatusForbidden {
		t.Fatalf("expected 403 for unsigned callback, got %d", got)
	}
}
