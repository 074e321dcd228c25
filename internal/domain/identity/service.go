package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/auth"
)

// TokenIssuer signs session tokens for the built-in login.
type TokenIssuer interface {
	Issue(userID, role, email string) (string, time.Time, error)
}

type Service struct {
	repo   Repository
	tx     Transactor
	tokens TokenIssuer
}

// NewService builds the identity service. tx may be nil, in which case a
// user and its profile are written without a transaction. tokens may be nil
// when sign-in is delegated to an external provider.
func NewService(repo Repository, tx Transactor, tokens TokenIssuer) *Service {
	return &Service{repo: repo, tx: tx, tokens: tokens}
}

func (s *Service) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithinTx(ctx, fn)
}

type SignUpInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	// ConfirmPassword is checked against Password when the client sends it.
	ConfirmPassword string `json:"confirm_password"`
	// AuthUID links the account to an external identity; the password is
	// then managed by the provider.
	AuthUID string `json:"-"`
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Invalid("email", "email is not a valid address")
	}
	return email, nil
}

// SignUp registers a patient. The name defaults to the local part of the email.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	u := &User{
		Name:  strings.TrimSpace(in.Name),
		Email: email,
		Phone: strings.TrimSpace(in.Phone),
		Role:  RolePatient,
	}
	if u.Name == "" {
		u.Name = email[:strings.Index(email, "@")]
	}

	if in.AuthUID != "" {
		uid := in.AuthUID
		u.AuthUID = &uid
	} else {
		if len(in.Password) < auth.MinPasswordLength {
			return nil, apperr.Invalid("password", "password must be at least %d characters", auth.MinPasswordLength)
		}
		if in.ConfirmPassword != "" && in.ConfirmPassword != in.Password {
			return nil, apperr.Invalid("confirm_password", "passwords do not match")
		}
		if u.PasswordHash, err = auth.HashPassword(in.Password); err != nil {
			return nil, err
		}
	}

	err = s.withinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, u); err != nil {
			return err
		}
		return s.repo.SavePatientProfile(ctx, &PatientProfile{UserID: u.ID})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

type StaffInput struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Password       string   `json:"password"`
	Role           string   `json:"role"`
	Specialization string   `json:"specialization"`
	Skills         []string `json:"skills"`
}

// CreateStaff registers a doctor or therapist together with its profile.
func (s *Service) CreateStaff(ctx context.Context, in StaffInput) (*StaffMember, error) {
	role, err := ParseRole(in.Role)
	if err != nil || (role != RoleDoctor && role != RoleTherapist) {
		return nil, apperr.Invalid("role", "role must be doctor or therapist")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Invalid("name", "name is required")
	}
	if strings.TrimSpace(in.Phone) == "" {
		return nil, apperr.Invalid("phone", "phone is required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperr.Invalid("password", "password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		PasswordHash: hash,
	}
	skills := cleanList(in.Skills)
	err = s.withinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, u); err != nil {
			return err
		}
		if role == RoleDoctor {
			return s.repo.SaveDoctorProfile(ctx, &DoctorProfile{UserID: u.ID, Specialization: strings.TrimSpace(in.Specialization)})
		}
		return s.repo.SaveTherapistProfile(ctx, &TherapistProfile{UserID: u.ID, Skills: skills})
	})
	if err != nil {
		return nil, err
	}
	m := &StaffMember{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: u.Role}
	if role == RoleDoctor {
		m.Specialization = strings.TrimSpace(in.Specialization)
	} else {
		m.Skills = skills
	}
	return m, nil
}

// EnsureAdmin creates an admin account, or reports a conflict if the email is
// taken.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Invalid("password", "%s", err.Error())
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	u := &User{Name: strings.TrimSpace(name), Email: email, Role: RoleAdmin, PasswordHash: hash}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

var errBadCredentials = apperr.Unauthorized("invalid email or password")

// Login checks the password and that the account holds the role the caller
// signed in as.
func (s *Service) Login(ctx context.Context, email, password, selectedRole string) (*LoginResult, error) {
	if s.tokens == nil {
		return nil, apperr.Forbidden("password sign-in is disabled; use the identity provider")
	}
	role, err := ParseRole(selectedRole)
	if err != nil {
		return nil, apperr.Invalid("role", "role must be one of admin, doctor, therapist, patient")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if u.Role != role {
		return nil, apperr.Forbidden(fmt.Sprintf("this account is registered as %s", u.Role))
	}

	token, exp, err := s.tokens.Issue(u.ID.String(), string(u.Role), u.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// ResolveSubject maps a verified token subject to a stored user. Built-in
// tokens carry the user id; provider tokens carry the provider uid.
func (s *Service) ResolveSubject(ctx context.Context, sub string) (*User, error) {
	if sub == auth.DevSubject {
		u := DevAdmin
		return &u, nil
	}
	if id, err := uuid.Parse(sub); err == nil {
		u, err := s.repo.GetByID(ctx, id)
		if err == nil || !errors.Is(err, apperr.ErrNotFound) {
			return u, err
		}
	}
	return s.repo.GetByAuthUID(ctx, sub)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetWithRole fetches a user and checks it holds role.
func (s *Service) GetWithRole(ctx context.Context, id uuid.UUID, role Role) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound(string(role))
		}
		return nil, err
	}
	if u.Role != role {
		return nil, apperr.NotFound(string(role))
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	var r Role
	if role != "" {
		var err error
		if r, err = ParseRole(role); err != nil {
			return nil, 0, apperr.Invalid("role", "unknown role %q", role)
		}
	}
	return s.repo.List(ctx, r, limit, offset)
}

func (s *Service) CountByRole(ctx context.Context) (map[Role]int, error) {
	return s.repo.CountByRole(ctx)
}

// Directory lists doctors or therapists with their profile fields.
func (s *Service) Directory(ctx context.Context, role Role) ([]*StaffMember, error) {
	if role != RoleDoctor && role != RoleTherapist {
		return nil, apperr.Invalid("role", "directory is only available for doctors and therapists")
	}
	users, _, err := s.repo.List(ctx, role, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*StaffMember, 0, len(users))
	for _, u := range users {
		m := &StaffMember{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: u.Role}
		switch role {
		case RoleDoctor:
			if p, err := s.repo.GetDoctorProfile(ctx, u.ID); err == nil {
				m.Specialization = p.Specialization
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
		case RoleTherapist:
			if p, err := s.repo.GetTherapistProfile(ctx, u.ID); err == nil {
				m.Skills = p.Skills
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) canEditProfile(actor *User, userID uuid.UUID) error {
	if actor.Role == RoleAdmin || actor.ID == userID {
		return nil
	}
	return apperr.Forbidden("profiles can only be edited by their owner or an admin")
}

func (s *Service) UpdateDoctorProfile(ctx context.Context, actor *User, userID uuid.UUID, specialization string) (*DoctorProfile, error) {
	if err := s.canEditProfile(actor, userID); err != nil {
		return nil, err
	}
	if _, err := s.GetWithRole(ctx, userID, RoleDoctor); err != nil {
		return nil, err
	}
	p := &DoctorProfile{UserID: userID, Specialization: strings.TrimSpace(specialization)}
	if err := s.repo.SaveDoctorProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateTherapistProfile(ctx context.Context, actor *User, userID uuid.UUID, skills []string) (*TherapistProfile, error) {
	if err := s.canEditProfile(actor, userID); err != nil {
		return nil, err
	}
	if _, err := s.GetWithRole(ctx, userID, RoleTherapist); err != nil {
		return nil, err
	}
	p := &TherapistProfile{UserID: userID, Skills: cleanList(skills)}
	if err := s.repo.SaveTherapistProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[strings.ToLower(it)] {
			continue
		}
		seen[strings.ToLower(it)] = true
		out = append(out, it)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
