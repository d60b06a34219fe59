package api

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestGzipRequestMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		body     []byte
		status   int
		want     string
	}{
		{name: "plain body untouched", body: []byte(`{"txt":"hi"}`), status: http.StatusOK, want: `{"txt":"hi"}`},
		{name: "gzip inflated", encoding: "gzip", body: gzipped(t, `{"txt":"hi"}`), status: http.StatusOK, want: `{"txt":"hi"}`},
		{name: "listed encoding", encoding: "identity, GZIP", body: gzipped(t, "x"), status: http.StatusOK, want: "x"},
		{name: "broken gzip", encoding: "gzip", body: []byte("nope"), status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(tt.body))
			if tt.encoding != "" {
				req.Header.Set(echo.HeaderContentEncoding, tt.encoding)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var got string
			h := GzipRequestMiddleware()(func(c echo.Context) error {
				if c.Request().Header.Get(echo.HeaderContentEncoding) != "" {
					t.Fatalf("content encoding header should be dropped after inflating")
				}
				b, err := io.ReadAll(c.Request().Body)
				if err != nil {
					return err
				}
				got = string(b)
				return c.NoContent(http.StatusOK)
			})
			if err := h(c); err != nil {
				t.Fatalf("handler: %v", err)
			}
			if rec.Code != tt.status {
				t.Fatalf("expected %d got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK && got != tt.want {
				t.Fatalf("unexpected body %q", got)
			}
		})
	}
}

func TestGzipRequestMiddlewareCapsInflatedSize(t *testing.T) {
	e := echo.New()
	body := gzipped(t, strings.Repeat("a", maxInflatedBody+1024))
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	c := e.NewContext(req, httptest.NewRecorder())

	var n int
	h := GzipRequestMiddleware()(func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		n = len(b)
		return err
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if n != maxInflatedBody {
		t.Fatalf("expected body capped at %d bytes, got %d", maxInflatedBody, n)
	}
}
