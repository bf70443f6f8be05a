// Package identify exposes the observation resolution endpoint.
package identify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
)

var validate = validator.New()

// Resolver is the reconciler surface the route needs.
type Resolver interface {
	Resolve(ctx context.Context, email, phone *string) (*models.ClusterView, error)
}

// Handler handles identify requests.
type Handler struct {
	resolver Resolver
	logger   logging.Logger
}

// NewHandler creates a new identify handler.
func NewHandler(resolver Resolver, logger logging.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// Register registers the identify route.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/identify", h.Identify)
}

// Identify resolves one observation into its consolidated cluster view.
func (h *Handler) Identify(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.IdentifyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// Blank fields are absent fields; validation applies to real values only.
	req.Email = dropBlank(req.Email)
	req.PhoneNumber = dropBlank(req.PhoneNumber)

	if req.Email == nil && req.PhoneNumber == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "either email or phoneNumber is required")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	view, err := h.resolver.Resolve(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, resolution.ErrEmptyObservation):
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, resolution.ErrResolveConflict):
			return httperror.NewHTTPError(http.StatusServiceUnavailable, "resolution conflicted with concurrent requests, retry")
		default:
			h.logger.WithContext(ctx).WithError(err).Error("Failed to resolve observation")
			return httperror.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: *view})
}

func dropBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
