package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
}

// originChecker allows any origin when the list is empty or holds "*", and
// otherwise only exact scheme://host matches.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// socket authenticates with the Authorization header, the login cookie or a
// token query parameter, then hands the upgraded connection to the hub.
func socket(sockets SocketServer, auth Authenticator, upgrader *websocket.Upgrader, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := auth.ActorFromAuthHeader(authHeader(c.Request()))
		if err != nil {
			return writeError(c, http.StatusUnauthorized, err.Error())
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.WithError(err).Debug("websocket upgrade failed")
			return nil
		}
		sockets.ServeConn(c.Request().Context(), conn, actor)
		return nil
	}
}
