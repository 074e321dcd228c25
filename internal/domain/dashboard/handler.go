package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/platform/apperr"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.Get)
}

func (h *Handler) Get(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	view, err := h.registry.Build(c.Request().Context(), u)
	if err != nil {
		return apperr.HTTP(err, "failed to build dashboard")
	}
	return c.JSON(http.StatusOK, view)
}
