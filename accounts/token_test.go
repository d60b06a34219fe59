package accounts

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"board-api/domain"
)

func TestTokenIssuerIssue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	issuer := NewTokenIssuer([]byte("local-secret"), time.Hour, "board-api", "board-web")
	issuer.now = func() time.Time { return now }

	u := &domain.User{ID: "u1", Fullname: "Ann", ImgURL: "https://img/ann.png", Role: domain.RoleFounder, CompanyName: "Acme"}
	raw, err := issuer.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("local-secret"), nil
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	checks := map[string]interface{}{
		"sub":            "u1",
		"iss":            "board-api",
		"aud":            "board-web",
		ClaimName:        "Ann",
		ClaimRole:        "Founder",
		ClaimCompanyName: "Acme",
		ClaimPicture:     "https://img/ann.png",
	}
	for k, want := range checks {
		if claims[k] != want {
			t.Fatalf("claim %s: expected %v, got %v", k, want, claims[k])
		}
	}
	if exp, ok := claims["exp"].(float64); !ok || int64(exp) != now.Add(time.Hour).Unix() {
		t.Fatalf("unexpected exp %v", claims["exp"])
	}
}

func TestTokenIssuerRequiresSecret(t *testing.T) {
	issuer := NewTokenIssuer(nil, time.Hour, "", "")
	if _, err := issuer.Issue(&domain.User{ID: "u1"}); err == nil {
		t.Fatalf("expected error without secret")
	}
}
