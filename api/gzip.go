package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies. The
// decompressed stream is capped at limit bytes so a small compressed body
// cannot expand past the size handlers accept.
func GzipRequestMiddleware(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !gzipEncoded(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid gzip body"})
			}

			var body io.ReadCloser = &gzipBody{Reader: gr, raw: req.Body}
			if limit > 0 {
				body = http.MaxBytesReader(c.Response(), body, limit)
			}
			req.Body = body
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func gzipEncoded(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipBody struct {
	*gzip.Reader
	raw io.Closer
}

func (g *gzipBody) Close() error {
	err := g.Reader.Close()
	if cerr := g.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
