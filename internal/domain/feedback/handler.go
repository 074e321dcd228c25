package feedback

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/auth"
	"github.com/ayurveda/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/feedback", h.Submit, auth.RequireRole("patient"))
	api.GET("/feedback", h.List, auth.RequireRole("patient", "doctor"))
	api.GET("/feedback/sentiment", h.Sentiment, auth.RequireRole("admin"))
}

func (h *Handler) Submit(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.Submit(c.Request().Context(), u, in)
	if err != nil {
		return apperr.HTTP(err, "failed to submit feedback")
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) List(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), u, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err, "failed to list feedback")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) Sentiment(c echo.Context) error {
	rows, err := h.svc.SentimentByDoctor(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err, "failed to aggregate feedback")
	}
	return c.JSON(http.StatusOK, rows)
}
