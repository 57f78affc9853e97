package auth

import (
	"github.com/labstack/echo/v4"
)

// slotlessPaths lists URL paths that never need a client slot. They are
// infrastructure endpoints polled by probes that do not keep cookies.
var slotlessPaths = map[string]bool{
	"/health":      true,
	"/favicon.ico": true,
}

// SlotSkipper returns true for requests that should not be assigned a
// client slot cookie.
func SlotSkipper(c echo.Context) bool {
	return slotlessPaths[c.Request().URL.Path]
}
