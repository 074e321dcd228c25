package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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

// RegisterRoutes mounts the identity routes. credentialLimit wraps sign-up
// and login with the stricter rate limiter; it may be nil.
func (h *Handler) RegisterRoutes(api *echo.Group, credentialLimit echo.MiddlewareFunc) {
	var authMW []echo.MiddlewareFunc
	if credentialLimit != nil {
		authMW = append(authMW, credentialLimit)
	}
	api.POST("/auth/signup", h.SignUp, authMW...)
	api.POST("/auth/login", h.Login, authMW...)
	api.GET("/auth/me", h.Me)

	admin := api.Group("", auth.RequireRole("admin"))
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateStaff)
	admin.GET("/users/:id", h.GetUser)

	api.GET("/therapists", h.ListTherapists, auth.RequireRole("doctor"))
	api.GET("/doctors", h.ListDoctors, auth.RequireRole("patient", "doctor", "therapist"))

	api.PUT("/profiles/doctor", h.UpdateDoctorProfile, auth.RequireRole("doctor"))
	api.PUT("/profiles/therapist", h.UpdateTherapistProfile, auth.RequireRole("therapist"))
}

func (h *Handler) SignUp(c echo.Context) error {
	var in SignUpInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if CurrentUser(ctx) != nil {
		return echo.NewHTTPError(http.StatusConflict, "already signed up")
	}
	// A verified provider token without an account means an external sign-up.
	in.AuthUID = auth.SubjectFromContext(ctx)
	if in.AuthUID == auth.DevSubject {
		in.AuthUID = ""
	}
	if in.AuthUID != "" {
		if email, _ := c.Get("token_email").(string); email != "" {
			in.Email = email
		}
	}

	u, err := h.svc.SignUp(ctx, in)
	if err != nil {
		return apperr.HTTP(err, "failed to sign up")
	}
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password, req.Role)
	if err != nil {
		return apperr.HTTP(err, "failed to sign in")
	}
	return c.JSON(http.StatusOK, res)
}

type meResponse struct {
	*User
	Profile interface{} `json:"profile,omitempty"`
}

func (h *Handler) Me(c echo.Context) error {
	u, err := RequireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	resp := meResponse{User: u}
	switch u.Role {
	case RoleDoctor:
		resp.Profile, err = h.svc.repo.GetDoctorProfile(ctx, u.ID)
	case RoleTherapist:
		resp.Profile, err = h.svc.repo.GetTherapistProfile(ctx, u.ID)
	case RolePatient:
		resp.Profile, err = h.svc.repo.GetPatientProfile(ctx, u.ID)
	}
	if err != nil {
		resp.Profile = nil
		if !isNotFound(err) {
			return apperr.HTTP(err, "failed to load profile")
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err, "failed to list users")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var in StaffInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.CreateStaff(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err, "failed to create user")
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err, "failed to load user")
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListTherapists(c echo.Context) error {
	list, err := h.svc.Directory(c.Request().Context(), RoleTherapist)
	if err != nil {
		return apperr.HTTP(err, "failed to list therapists")
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	list, err := h.svc.Directory(c.Request().Context(), RoleDoctor)
	if err != nil {
		return apperr.HTTP(err, "failed to list doctors")
	}
	return c.JSON(http.StatusOK, list)
}

type profileRequest struct {
	// UserID lets an admin edit someone else's profile.
	UserID         string   `json:"user_id"`
	Specialization string   `json:"specialization"`
	Skills         []string `json:"skills"`
}

func (h *Handler) profileTarget(c echo.Context) (*User, uuid.UUID, *profileRequest, error) {
	u, err := RequireUser(c)
	if err != nil {
		return nil, uuid.Nil, nil, err
	}
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return nil, uuid.Nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	target := u.ID
	if req.UserID != "" {
		if target, err = uuid.Parse(req.UserID); err != nil {
			return nil, uuid.Nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
	}
	return u, target, &req, nil
}

func (h *Handler) UpdateDoctorProfile(c echo.Context) error {
	u, target, req, err := h.profileTarget(c)
	if err != nil {
		return err
	}
	p, err := h.svc.UpdateDoctorProfile(c.Request().Context(), u, target, req.Specialization)
	if err != nil {
		return apperr.HTTP(err, "failed to update profile")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateTherapistProfile(c echo.Context) error {
	u, target, req, err := h.profileTarget(c)
	if err != nil {
		return err
	}
	p, err := h.svc.UpdateTherapistProfile(c.Request().Context(), u, target, req.Skills)
	if err != nil {
		return apperr.HTTP(err, "failed to update profile")
	}
	return c.JSON(http.StatusOK, p)
}
