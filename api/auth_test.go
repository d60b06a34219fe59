package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"board-api/accounts"
	"board-api/domain"
)

var testSecret = []byte("test-secret")

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestBearerTokenSuccess(t *testing.T) {
	token, err := bearerToken("  Bearer header.payload.signature ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", token)
	}
}

func TestBearerTokenErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"blank", "   ", errMissingAuthorization},
		{"no prefix", "Token a.b.c", errBadAuthorization},
		{"prefix only", "Bearer ", errBadAuthorization},
		{"many periods", "Bearer " + strings.Repeat(".", 1000), errBadAuthorization},
		{"not a jwt", "Bearer abc", errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bearerToken(tt.header); err != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthHeaderFallbacks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/socket?token=q.q.q", nil)
	if got := authHeader(req); got != "Bearer q.q.q" {
		t.Fatalf("expected query token, got %q", got)
	}
	req.AddCookie(&http.Cookie{Name: loginCookie, Value: "c.c.c"})
	if got := authHeader(req); got != "Bearer c.c.c" {
		t.Fatalf("expected cookie token, got %q", got)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer h.h.h")
	if got := authHeader(req); got != "Bearer h.h.h" {
		t.Fatalf("expected header token, got %q", got)
	}
	if got := authHeader(httptest.NewRequest(http.MethodGet, "/", nil)); got != "" {
		t.Fatalf("expected empty header, got %q", got)
	}
}

func TestActorFromLocalToken(t *testing.T) {
	issuer := accounts.NewTokenIssuer(testSecret, time.Hour, "board-api", "")
	token, err := issuer.Issue(&domain.User{
		ID: "u1", Fullname: "Ann", ImgURL: "a.png", Role: domain.RoleCoFounder, CompanyName: "Acme", Approved: true,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	auth := NewAuth(nil, "", "", testSecret, "board-api", 0)
	actor, err := auth.ActorFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	want := domain.Actor{ID: "u1", Fullname: "Ann", ImgURL: "a.png", Role: domain.RoleCoFounder, CompanyName: "Acme", Approved: true}
	if *actor != want {
		t.Fatalf("unexpected actor %+v", *actor)
	}
}

func TestActorFromBearerRejects(t *testing.T) {
	now := time.Now()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "u1",
			"iss": "board-api",
			"exp": now.Add(5 * time.Minute).Unix(),
			"nbf": now.Add(-time.Minute).Unix(),
			"iat": now.Add(-time.Minute).Unix(),
		}
	}
	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
	}{
		{"wrong issuer", func(c jwt.MapClaims) { c["iss"] = "someone-else" }},
		{"expired", func(c jwt.MapClaims) { c["exp"] = now.Add(-5 * time.Minute).Unix() }},
		{"missing exp", func(c jwt.MapClaims) { delete(c, "exp") }},
		{"missing sub", func(c jwt.MapClaims) { delete(c, "sub") }},
		{"invalid role", func(c jwt.MapClaims) { c[accounts.ClaimRole] = "Admin" }},
	}
	auth := NewAuth(nil, "", "", testSecret, "board-api", 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := base()
			tt.mutate(claims)
			if _, err := auth.ActorFromBearer(signHS256(t, claims)); err == nil {
				t.Fatalf("expected token to be rejected")
			}
		})
	}
}

func TestActorFromBearerRejectsHMACWithoutSecret(t *testing.T) {
	token := signHS256(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Minute).Unix()})
	auth := NewAuth(nil, "", "", nil, "", 0)
	if _, err := auth.ActorFromBearer(token); err == nil {
		t.Fatalf("expected HS256 token to be rejected without a local secret")
	}
}
