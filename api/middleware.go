package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// maxInflatedBody caps what a compressed request may expand to.
const maxInflatedBody = 2 << 20

// GzipRequestMiddleware inflates gzip request bodies before the handlers
// decode them. A body that is not valid gzip is answered with 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isGzipped(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}
			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return writeError(c, http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = inflatedBody{Reader: io.LimitReader(zr, maxInflatedBody), zr: zr, raw: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func isGzipped(encoding string) bool {
	for enc := range strings.SplitSeq(encoding, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type inflatedBody struct {
	io.Reader
	zr  *gzip.Reader
	raw io.Closer
}

func (b inflatedBody) Close() error {
	zerr := b.zr.Close()
	if err := b.raw.Close(); err != nil {
		return err
	}
	return zerr
}
