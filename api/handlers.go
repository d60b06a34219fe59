package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Deps groups what the routes need. Deduper and Sockets are optional.
type Deps struct {
	Boards   BoardService
	Accounts AccountService
	Tokens   TokenIssuer
	Auth     Authenticator
	Deduper  Deduper
	Sockets  SocketServer
	Logger   *log.Logger

	// SecureCookie marks the login cookie Secure and SameSite=None.
	SecureCookie bool
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	e.GET("/api/boards", getBoards(d.Boards, d.Auth, d.Logger))
	e.POST("/api/boards", postBoard(d.Boards, d.Auth))
	e.GET("/api/boards/:id", getBoard(d.Boards, d.Auth))
	e.PUT("/api/boards/:id", putBoard(d.Boards, d.Auth))
	e.DELETE("/api/boards/:id", deleteBoard(d.Boards, d.Auth))
	e.POST("/api/boards/:id/duplicate", duplicateBoard(d.Boards, d.Auth))
	e.POST("/api/boards/:id/operations", postOperation(d.Boards, d.Auth, d.Deduper, d.Logger))
	e.POST("/api/boards/:id/messages", postMessage(d.Boards, d.Auth))
	e.DELETE("/api/boards/:id/messages/:msgId", deleteMessage(d.Boards, d.Auth))
	e.POST("/api/boards/:id/track-view", trackView(d.Boards, d.Auth))
	e.GET("/api/boards/:id/viewers", getViewers(d.Boards, d.Auth))

	e.POST("/api/auth/signup", signup(d.Accounts, d.Tokens, d.SecureCookie))
	e.POST("/api/auth/login", login(d.Accounts, d.Tokens, d.SecureCookie))
	e.POST("/api/auth/logout", logout(d.SecureCookie))
	e.GET("/api/users", getUsers(d.Accounts, d.Auth))
	e.GET("/api/users/:id", getUser(d.Accounts, d.Auth))
	e.PUT("/api/users/:id", putUser(d.Accounts, d.Auth))
	e.DELETE("/api/users/:id", deleteUser(d.Accounts, d.Auth))
	e.PUT("/api/users/:id/approve", approveUser(d.Accounts, d.Auth))

	if d.Sockets != nil {
		e.GET("/api/socket", socket(d.Sockets, d.Auth, newUpgrader(d.AllowedOrigins), d.Logger))
	}
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func authenticate(c echo.Context, auth Authenticator) (*domain.Actor, error) {
	actor, err := auth.ActorFromAuthHeader(authHeader(c.Request()))
	if err != nil {
		return nil, writeError(c, http.StatusUnauthorized, err.Error())
	}
	return actor, nil
}

// decodeBody reads at most limit bytes of JSON into v. Strict bodies reject
// unknown fields.
func decodeBody(c echo.Context, limit int64, strict bool, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, limit))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

func getBoards(svc BoardService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/boards")
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		var failure error
		defer func() {
			metrics.Log(c.Response().Status, failure)
		}()

		authStart := time.Now()
		actor, err := auth.ActorFromAuthHeader(authHeader(c.Request()))
		metrics.ObserveAuth(time.Since(authStart))
		if err != nil {
			metrics.SetErrorStage("auth")
			return writeError(c, http.StatusUnauthorized, err.Error())
		}

		queryStart := time.Now()
		boards, err := svc.Query(ctx, domain.BoardFilter{Title: c.QueryParam("title"), Actor: actor})
		metrics.ObserveService(time.Since(queryStart))
		if err != nil {
			metrics.SetErrorStage("storage")
			failure = err
			return respondError(c, err, "Failed to get boards")
		}
		metrics.SetBoardsReturned(len(boards))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, boards)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
			failure = err
		}
		return err
	}
}

// getBoard answers 403 for both missing and hidden boards, so ids of other
// companies cannot be discovered.
func getBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		b, err := svc.Get(c.Request().Context(), actor, c.Param("id"))
		if errors.Is(err, domain.ErrNotFound) {
			return writeError(c, http.StatusForbidden, msgAccessDenied)
		}
		if err != nil {
			return respondError(c, err, "Failed to get board")
		}
		return c.JSON(http.StatusOK, b)
	}
}

func postBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		var in domain.Board
		if err := decodeBody(c, boardBodyMaxSize, false, &in); err != nil && !errors.Is(err, io.EOF) {
			return writeError(c, http.StatusBadRequest, "invalid body")
		}
		b, err := svc.Create(c.Request().Context(), actor, &in)
		if err != nil {
			return respondError(c, err, "Failed to add board")
		}
		return c.JSON(http.StatusOK, b)
	}
}

func putBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		var in domain.Board
		if err := decodeBody(c, boardBodyMaxSize, false, &in); err != nil {
			return writeError(c, http.StatusBadRequest, "invalid body")
		}
		id := c.Param("id")
		if in.ID != "" && in.ID != id {
			return writeError(c, http.StatusBadRequest, "board id mismatch")
		}
		b, err := svc.Update(c.Request().Context(), actor, id, &in)
		if err != nil {
			return respondError(c, err, "Failed to update board")
		}
		return c.JSON(http.StatusOK, b)
	}
}

func deleteBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		id := c.Param("id")
		if err := svc.Remove(c.Request().Context(), actor, id); err != nil {
			return respondError(c, err, "Failed to remove board")
		}
		return c.String(http.StatusOK, id)
	}
}

func duplicateBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		b, err := svc.Duplicate(c.Request().Context(), actor, c.Param("id"))
		if err != nil {
			return respondError(c, err, "Failed to duplicate board")
		}
		return c.JSON(http.StatusCreated, b)
	}
}

// postOperation applies one operation to a board. A repeated Idempotency-Key
// answers with the current board instead of applying the operation again.
func postOperation(svc BoardService, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger, "/api/boards/:id/operations")
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		var failure error
		defer func() {
			metrics.Log(c.Response().Status, failure)
		}()

		authStart := time.Now()
		actor, err := auth.ActorFromAuthHeader(authHeader(c.Request()))
		metrics.ObserveAuth(time.Since(authStart))
		if err != nil {
			metrics.SetErrorStage("auth")
			return writeError(c, http.StatusUnauthorized, err.Error())
		}

		var req domain.OperationRequest
		if err := decodeBody(c, postOperationMaxSize, true, &req); err != nil {
			metrics.SetErrorStage("decode_body")
			return writeError(c, http.StatusBadRequest, "invalid body")
		}
		metrics.SetOperation(string(req.Type))
		op, err := domain.DecodeOperation(req)
		if err != nil {
			metrics.SetErrorStage("decode_operation")
			return respondError(c, err, "invalid operation")
		}

		boardID := c.Param("id")
		key := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
		if key != "" && deduper != nil {
			dedupeKey := boardID + ":" + key
			added, derr := deduper.Add(ctx, actor.ID, dedupeKey)
			switch {
			case derr != nil:
				logger.WithError(derr).Warn("idempotency check unavailable; applying operation")
			case !added:
				metrics.SetReplayed(true)
				b, gerr := svc.Get(ctx, actor, boardID)
				if gerr != nil {
					metrics.SetErrorStage("replay")
					return respondError(c, gerr, "Failed to update board")
				}
				c.Response().Header().Set("Idempotent-Replayed", "true")
				return c.JSON(http.StatusOK, operationResponse{Board: b})
			default:
				defer func() {
					if failure == nil && c.Response().Status < http.StatusBadRequest {
						return
					}
					if rerr := deduper.Remove(ctx, actor.ID, dedupeKey); rerr != nil {
						logger.WithError(rerr).Warn("unable to release idempotency key")
					}
				}()
			}
		}

		applyStart := time.Now()
		b, changed, err := svc.ApplyOperation(ctx, actor, boardID, op)
		metrics.ObserveService(time.Since(applyStart))
		if err != nil {
			metrics.SetErrorStage("apply")
			if status, _ := statusForError(err, ""); status >= http.StatusInternalServerError {
				failure = err
			}
			return respondError(c, err, "Failed to update board")
		}
		metrics.SetChanged(changed)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, operationResponse{Board: b, Changed: changed})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
			failure = err
		}
		return err
	}
}

func postMessage(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		var req messageRequest
		if err := decodeBody(c, smallBodyMaxSize, true, &req); err != nil {
			return writeError(c, http.StatusBadRequest, "invalid body")
		}
		msg, err := svc.AddMessage(c.Request().Context(), actor, c.Param("id"), req.Txt)
		if err != nil {
			return respondError(c, err, "Failed to add board msg")
		}
		return c.JSON(http.StatusOK, msg)
	}
}

func deleteMessage(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		msgID := c.Param("msgId")
		if err := svc.RemoveMessage(c.Request().Context(), actor, c.Param("id"), msgID); err != nil {
			return respondError(c, err, "Failed to remove board msg")
		}
		return c.String(http.StatusOK, msgID)
	}
}

func trackView(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		b, err := svc.TrackView(c.Request().Context(), actor, c.Param("id"))
		if err != nil {
			return respondError(c, err, "Failed to track board view")
		}
		return c.JSON(http.StatusOK, b)
	}
}

func getViewers(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := authenticate(c, auth)
		if actor == nil {
			return err
		}
		viewers, err := svc.Viewers(c.Request().Context(), actor, c.Param("id"))
		if err != nil {
			return respondError(c, err, "Failed to get board viewers")
		}
		return c.JSON(http.StatusOK, viewers)
	}
}
