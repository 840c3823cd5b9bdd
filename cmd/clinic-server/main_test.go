package main

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/middleware"
)

func testConfig(env, signingKey string) *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            env,
		StoreBackend:   config.BackendMemory,
		AuthSigningKey: signingKey,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		RequestTimeout: 5 * time.Second,
		BodyLimit:      "1M",
		ClinicTimezone: "UTC",
		ClinicName:     "Obonti Piles Clinic",
		ClinicDoctor:   "Dr. Abhijit Kumar",
		SearchBatch:    20,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	st, err := openStores(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	e, err := newServer(cfg, zerolog.Nop(), st)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func do(e *echo.Echo, method, target, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	e := newTestServer(t, testConfig("development", ""))

	rec := do(e, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"store":"memory"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	rec = do(e, http.MethodGet, "/health/store", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("store health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_DevModeFlow(t *testing.T) {
	e := newTestServer(t, testConfig("development", ""))

	rec := do(e, http.MethodPost, "/api/v1/patients",
		`{"name":"Anita Sharma","address":"Kolkata","mobile":"9876543210","disease":"piles","totalCost":5000}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create patient: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/v1/dashboard", "", "")
	if strings.TrimSpace(rec.Body.String()) != `{"totalPatients":1}` {
		t.Errorf("dashboard: %s", rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/v1/seed", `{"patientCount":3,"seed":7}`, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"patients":3`) {
		t.Fatalf("seed: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/v1/dashboard", "", "")
	if strings.TrimSpace(rec.Body.String()) != `{"totalPatients":4}` {
		t.Errorf("dashboard after seed: %s", rec.Body.String())
	}
}

func TestServer_JWTMode(t *testing.T) {
	cfg := testConfig("staging", "test-signing-key")
	e := newTestServer(t, cfg)

	if rec := do(e, http.MethodGet, "/api/v1/patients", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("health should not need a token, got %d", rec.Code)
	}

	staff, err := auth.IssueToken(jwtConfig(cfg), "front-desk", []string{auth.RoleStaff}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if rec := do(e, http.MethodGet, "/api/v1/patients", "", staff); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with staff token, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodPost, "/api/v1/seed", "", staff); rec.Code != http.StatusForbidden {
		t.Errorf("seeding needs admin, got %d", rec.Code)
	}
}

func TestServer_ProductionHasNoSeedRoute(t *testing.T) {
	cfg := testConfig("production", "test-signing-key")
	e := newTestServer(t, cfg)

	admin, err := auth.IssueToken(jwtConfig(cfg), "owner", []string{auth.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if rec := do(e, http.MethodPost, "/api/v1/seed", "", admin); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected no seed route in production, got %d", rec.Code)
	}
}

func TestMigrationsFS_Embedded(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS(&config.Config{}), "001_clinic.sql")
	if err != nil {
		t.Fatalf("read embedded migration: %v", err)
	}
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS patient", "CREATE TABLE IF NOT EXISTS payment"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("migration missing %q", want)
		}
	}
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	cfg := testConfig("development", "")
	cfg.StoreBackend = "sqlite"
	if _, err := openStores(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
