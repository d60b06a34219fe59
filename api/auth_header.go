package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const (
	// loginCookie carries the session token for browser clients.
	loginCookie  = "loginToken"
	bearerPrefix = "Bearer "
)

// authHeader returns the Authorization value of the request, falling back to
// the login cookie and then to a token query parameter, which is all a
// browser websocket can send.
func authHeader(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		return h
	}
	if ck, err := r.Cookie(loginCookie); err == nil && ck.Value != "" {
		return bearerPrefix + ck.Value
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return bearerPrefix + tok
	}
	return ""
}

// bearerToken extracts a compact JWT from an Authorization value.
func bearerToken(raw string) (string, error) {
	raw = strings.Trim(raw, " ")
	if raw == "" {
		return "", errMissingAuthorization
	}
	token, ok := strings.CutPrefix(raw, bearerPrefix)
	if !ok || token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
