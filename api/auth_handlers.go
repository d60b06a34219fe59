package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"board-api/accounts"
	"board-api/domain"
)

func setLoginCookie(c echo.Context, token string, secure bool, maxAge int) {
	ck := &http.Cookie{
		Name:     loginCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		ck.Secure = true
		ck.SameSite = http.SameSiteNoneMode
	}
	if maxAge < 0 {
		ck.Expires = time.Unix(0, 0)
	}
	c.SetCookie(ck)
}

// startSession issues a token for u and sets the login cookie.
func startSession(c echo.Context, tokens TokenIssuer, u *domain.User, secure bool, status int) error {
	token, err := tokens.Issue(u)
	if err != nil {
		return respondError(c, err, "Failed to login")
	}
	setLoginCookie(c, token, secure, 0)
	return c.JSON(status, loginResponse{User: u, Token: token})
}

// signup creates the account. Accounts that still need approval get no
// session.
func signup(svc AccountService, tokens TokenIssuer, secure bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req accounts.SignUpRequest
		if err := decodeBody(c, smallBodyMaxSize, true, &req); err != nil {
			return writeError(c, http.StatusBadRequest, "invalid body")
		}
		u, err := svc.SignUp(c.Request().Context(), req)
		if err != nil {
			return respondError(c, err, "Failed to signup")
		}
		if !u.Approved {
			return c.JSON(http.StatusCreated, u)
		}
		return startSession(c, tokens, u, secure, http.StatusCreated)
	}
}

func login(svc AccountService, tokens TokenIssuer, secure bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req accounts.LoginRequest
		if err := decodeBody(c, smallBodyMaxSize, true, &req); err != nil {
			return writeError(c, http.StatusBadRequest, "invalid body")
		}
		u, err := svc.Login(c.Request().Context(), req)
		if err != nil {
			return respondError(c, err, "Failed to login")
		}
		return startSession(c, tokens, u, secure, http.StatusOK)
	}
}

func logout(secure bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		setLoginCookie(c, "", secure, -1)
		return c.JSON(http.StatusOK, map[string]string{"msg": "Logged out successfully"})
	}
}

func approveUser(svc AccountService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		u, err := svc.Approve(c.Request().Context(), actor, c.Param("id"))
		if err != nil {
			return respondError(c, err, "Failed to approve user")
		}
		return c.JSON(http.StatusOK, u)
	}
}

func getUsers(svc AccountService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		users, err := svc.Query(c.Request().Context(), actor, c.QueryParam("txt"))
		if err != nil {
			return respondError(c, err, "Failed to get users")
		}
		return c.JSON(http.StatusOK, users)
	}
}

func getUser(svc AccountService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		u, err := svc.Get(c.Request().Context(), actor, c.Param("id"))
		if err != nil {
			return respondError(c, err, "Failed to get user")
		}
		return c.JSON(http.StatusOK, u)
	}
}

// putUser edits profile fields. Role, company and approval have their own
// flows, so bodies naming them are rejected.
func putUser(svc AccountService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		var in accounts.ProfileUpdate
		if err := decodeBody(c, smallBodyMaxSize, true, &in); err != nil {
			return writeError(c, http.StatusBadRequest, "invalid body")
		}
		u, err := svc.Update(c.Request().Context(), actor, c.Param("id"), in)
		if err != nil {
			return respondError(c, err, "Failed to update user")
		}
		return c.JSON(http.StatusOK, u)
	}
}

func deleteUser(svc AccountService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		id := c.Param("id")
		if err := svc.Remove(c.Request().Context(), actor, id); err != nil {
			return respondError(c, err, "Failed to remove user")
		}
		return c.String(http.StatusOK, id)
	}
}
