package accounts

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"board-api/domain"
)

// Claims carried by issued tokens, next to the registered ones.
const (
	ClaimName        = "name"
	ClaimRole        = "role"
	ClaimCompanyName = "companyName"
	ClaimPicture     = "picture"
)

// TokenIssuer signs HS256 session tokens for logged-in users.
type TokenIssuer struct {
	Secret   []byte
	TTL      time.Duration
	Issuer   string
	Audience string
	now      func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration, issuer, audience string) *TokenIssuer {
	return &TokenIssuer{Secret: secret, TTL: ttl, Issuer: issuer, Audience: audience, now: time.Now}
}

// Issue returns a signed token for u.
func (t *TokenIssuer) Issue(u *domain.User) (string, error) {
	if len(t.Secret) == 0 {
		return "", errors.New("token secret not configured")
	}
	now := time.Now()
	if t.now != nil {
		now = t.now()
	}
	claims := jwt.MapClaims{
		"sub":            u.ID,
		"iat":            now.Unix(),
		"nbf":            now.Unix(),
		"exp":            now.Add(t.TTL).Unix(),
		ClaimName:        u.Fullname,
		ClaimRole:        string(u.Role),
		ClaimCompanyName: u.CompanyName,
	}
	if u.ImgURL != "" {
		claims[ClaimPicture] = u.ImgURL
	}
	if t.Issuer != "" {
		claims["iss"] = t.Issuer
	}
	if t.Audience != "" {
		claims["aud"] = t.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}
