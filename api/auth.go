package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"board-api/accounts"
	"board-api/domain"
)

const defaultJWKSCacheTTL = 15 * time.Minute

// Auth validates bearer tokens and turns their claims into an actor. RS256
// tokens of the identity provider are checked against its JWKS; HS256 tokens
// are the session tokens issued by login.
type Auth struct {
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	LocalSecret []byte
	LocalIssuer string

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth. jwks may be nil when only local tokens are
// accepted; localSecret may be empty when only provider tokens are.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, localSecret []byte, localIssuer string, keyCacheTTL time.Duration) *Auth {
	if keyCacheTTL <= 0 {
		keyCacheTTL = defaultJWKSCacheTTL
	}
	a := &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		LocalSecret: localSecret,
		LocalIssuer: localIssuer,
		keyCacheTTL: keyCacheTTL,
	}
	var methods []string
	if jwks != nil {
		methods = append(methods, "RS256")
	}
	if len(localSecret) > 0 {
		methods = append(methods, "HS256")
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods(methods))
	return a
}

// ActorFromAuthHeader authenticates the Authorization header value.
func (a *Auth) ActorFromAuthHeader(h string) (*domain.Actor, error) {
	if h == "" {
		return nil, errMissingAuthorization
	}
	token, err := bearerToken(h)
	if err != nil {
		return nil, err
	}
	return a.ActorFromBearer(token)
}

// ActorFromBearer authenticates a raw bearer token.
func (a *Auth) ActorFromBearer(token string) (*domain.Actor, error) {
	if token == "" {
		return nil, errBadAuthorization
	}
	local := false
	parsed, err := a.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok {
			if len(a.LocalSecret) == 0 {
				return nil, errors.New("invalid signing method")
			}
			local = true
			return a.LocalSecret, nil
		}
		return a.keyForToken(t)
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return nil, errors.New("token used before issued")
	}
	if local {
		if a.LocalIssuer != "" && !claims.VerifyIssuer(a.LocalIssuer, true) {
			return nil, errors.New("invalid issuer")
		}
	} else {
		if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
			return nil, errors.New("invalid audience")
		}
		if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
			return nil, errors.New("invalid issuer")
		}
	}
	return actorFromClaims(claims)
}

func actorFromClaims(claims jwt.MapClaims) (*domain.Actor, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("missing sub")
	}
	actor := &domain.Actor{
		ID:          sub,
		Fullname:    stringClaim(claims, accounts.ClaimName),
		ImgURL:      stringClaim(claims, accounts.ClaimPicture),
		Role:        domain.Role(stringClaim(claims, accounts.ClaimRole)),
		CompanyName: stringClaim(claims, accounts.ClaimCompanyName),
		Approved:    true,
	}
	if actor.Role != "" && !actor.Role.Valid() {
		return nil, errors.New("invalid role claim")
	}
	return actor, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
