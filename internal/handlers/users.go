// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Me returns the authenticated account. Sensitive columns never leave
// the model thanks to its json tags.
func (h *Handlers) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}
