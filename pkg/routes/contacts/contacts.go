// Package contacts exposes the contact listing endpoint.
package contacts

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Lister is the listing surface the route needs.
type Lister interface {
	ListAll(ctx context.Context) ([]models.Contact, error)
}

// Handler handles contact listing requests.
type Handler struct {
	lister Lister
	logger logging.Logger
}

// NewHandler creates a new contacts handler.
func NewHandler(lister Lister, logger logging.Logger) *Handler {
	return &Handler{lister: lister, logger: logger}
}

// Register registers the contacts route.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/contacts", h.List)
}

// List returns all non-deleted contacts ordered by creation time.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	contacts, err := h.lister.ListAll(ctx)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list contacts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}

	return c.JSON(http.StatusOK, contacts)
}
