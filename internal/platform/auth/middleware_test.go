package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runJWT(t *testing.T, cfg JWTConfig, path, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return JWTMiddleware(cfg)(handler)(c)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d error, got nil", want)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d", want, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "/api/v1/patients", "", okHandler)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "/", tt.header, okHandler)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "reception-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: []string{RoleStaff},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	var handlerCalled bool
	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "/", "Bearer "+tokenStr, func(c echo.Context) error {
		handlerCalled = true
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "reception-1" {
			t.Errorf("expected user_id=reception-1, got %s", uid)
		}
		if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleStaff {
			t.Errorf("expected roles=[staff], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "reception-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "/", "Bearer "+tokenStr, okHandler)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "reception-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tokenStr := createTestToken(t, claims, []byte("another-key"))

	err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "/", "Bearer "+tokenStr, okHandler)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "clinic"}
	tokenStr, err := IssueToken(JWTConfig{SigningKey: testSigningKey, Issuer: "elsewhere"}, "u", nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	err = runJWT(t, cfg, "/", "Bearer "+tokenStr, okHandler)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_SkipPath(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Skip: []string{"/health"}}

	for _, path := range []string{"/health", "/health/store"} {
		if err := runJWT(t, cfg, path, "", okHandler); err != nil {
			t.Errorf("%s: expected skip, got %v", path, err)
		}
	}
	err := runJWT(t, cfg, "/healthz", "", okHandler)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "clinic", Audience: "clinic-api"}
	tokenStr, err := IssueToken(cfg, "dr-kumar", []string{RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	err = runJWT(t, cfg, "/", "Bearer "+tokenStr, func(c echo.Context) error {
		if uid := UserIDFromContext(c.Request().Context()); uid != "dr-kumar" {
			t.Errorf("expected dr-kumar, got %s", uid)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIssueToken_RequiresKey(t *testing.T) {
	if _, err := IssueToken(JWTConfig{}, "u", nil, time.Hour); err == nil {
		t.Error("expected error without signing key")
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("expected user_id=dev-user, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != RoleAdmin {
			t.Errorf("expected roles=[admin], got %v", roles)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
