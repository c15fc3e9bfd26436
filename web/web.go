// Package web serves the single-page task view. The page talks to the JSON
// API only, with the bearer token the user pastes in.
package web

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed index.html
var indexHTML []byte

// Register mounts the view at "/".
func Register(e *echo.Echo) {
	e.GET("/", index)
}

func index(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, echo.MIMETextHTMLCharsetUTF8, indexHTML)
}
