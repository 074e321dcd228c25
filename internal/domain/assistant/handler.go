package assistant

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/platform/apperr"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/assistant/chat", h.Chat)
}

type chatRequest struct {
	Messages []Turn `json:"messages"`
}

type chatResponse struct {
	Reply Turn `json:"reply"`
}

func (h *Handler) Chat(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	reply, err := h.svc.Reply(c.Request().Context(), req.Messages)
	switch {
	case err == nil:
	case IsUnavailable(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "assistant is not available")
	case errors.As(err, new(*apperr.ValidationError)):
		return apperr.HTTP(err, "")
	default:
		h.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("assistant reply failed")
		return echo.NewHTTPError(http.StatusBadGateway, FallbackReply)
	}
	return c.JSON(http.StatusOK, chatResponse{Reply: Turn{Role: "assistant", Content: reply}})
}
