package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"board-api/accounts"
	"board-api/domain"
)

const msgAccessDenied = "Access denied to this board"

func writeError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Err: msg})
}

// statusForError maps service errors to a status and a client message.
// Unknown errors keep fallback as message so internals do not leak.
func statusForError(err error, fallback string) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, domain.ErrUnknownOperation),
		errors.Is(err, accounts.ErrMissingFields),
		errors.Is(err, accounts.ErrInvalidEmail),
		errors.Is(err, accounts.ErrInvalidRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, accounts.ErrNotApproved),
		errors.Is(err, accounts.ErrForbidden),
		errors.Is(err, accounts.ErrNotAllowed):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, accounts.ErrUserExists),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, fallback
}

func respondError(c echo.Context, err error, fallback string) error {
	status, msg := statusForError(err, fallback)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return writeError(c, status, msg)
}
