package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
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
	api.POST("/appointments", h.Book, auth.RequireRole("patient"))
	api.GET("/appointments", h.ListAppointments, auth.RequireRole("patient", "doctor"))
	api.GET("/appointments/:id", h.GetAppointment, auth.RequireRole("patient", "doctor"))
	api.POST("/appointments/:id/cancel", h.Cancel, auth.RequireRole("patient", "doctor"))

	api.PUT("/appointments/:id/prescription", h.SavePrescription, auth.RequireRole("doctor"))
	api.POST("/appointments/:id/complete", h.MarkCompleted, auth.RequireRole("doctor"))

	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.PATCH("/sessions/:id", h.UpdateSession, auth.RequireRole("therapist"))
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Book(c.Request().Context(), u, in)
	if err != nil {
		return apperr.HTTP(err, "failed to book appointment")
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	var f AppointmentFilter
	if st := c.QueryParam("status"); st != "" {
		if f.Status, err = ParseAppointmentStatus(st); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if d := c.QueryParam("date"); d != "" {
		if _, err := parseDate(d); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		f.DateFrom, f.DateTo = d, d
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), u, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err, "failed to list appointments")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), u, id)
	if err != nil {
		return apperr.HTTP(err, "failed to load appointment")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Cancel(c.Request().Context(), u, id)
	if err != nil {
		return apperr.HTTP(err, "failed to cancel appointment")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SavePrescription(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in SavePrescriptionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.SavePrescription(c.Request().Context(), u, id, in)
	if err != nil {
		return apperr.HTTP(err, "failed to save prescription")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) MarkCompleted(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.MarkCompleted(c.Request().Context(), u, id)
	if err != nil {
		return apperr.HTTP(err, "failed to complete appointment")
	}
	return c.JSON(http.StatusOK, a)
}

// parseBound accepts RFC 3339 or a bare date in the clinic time zone. A
// bare date used as an upper bound covers the whole day.
func (h *Handler) parseBound(s string, upper bool) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation(DateLayout, s, h.svc.Location())
	if err != nil {
		return nil, err
	}
	if upper {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &d, nil
}

func (h *Handler) ListSessions(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	var f SessionFilter
	if st := c.QueryParam("status"); st != "" {
		if f.Status, err = ParseSessionStatus(st); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if v := c.QueryParam("from"); v != "" {
		if f.From, err = h.parseBound(v, false); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be a date or RFC 3339 time")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if f.To, err = h.parseBound(v, true); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be a date or RFC 3339 time")
		}
	}
	if v := c.QueryParam("appointment_id"); v != "" {
		aid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
		}
		f.AppointmentID = &aid
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSessions(c.Request().Context(), u, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err, "failed to list sessions")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetSession(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ts, err := h.svc.GetSession(c.Request().Context(), u, id)
	if err != nil {
		return apperr.HTTP(err, "failed to load session")
	}
	return c.JSON(http.StatusOK, ts)
}

func (h *Handler) UpdateSession(c echo.Context) error {
	u, err := identity.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in UpdateSessionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ts, err := h.svc.UpdateSession(c.Request().Context(), u, id, in)
	if err != nil {
		return apperr.HTTP(err, "failed to update session")
	}
	return c.JSON(http.StatusOK, ts)
}
