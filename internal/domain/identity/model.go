package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDoctor    Role = "doctor"
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

// Roles lists every role in display order.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleTherapist, RolePatient}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleDoctor, RoleTherapist, RolePatient:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

type User struct {
	ID           uuid.UUID `json:"id"`
	AuthUID      *string   `json:"auth_uid,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DevAdmin is the synthetic user behind tokenless development requests.
var DevAdmin = User{
	ID:    uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	Name:  "Development Admin",
	Email: "dev-admin@localhost",
	Role:  RoleAdmin,
}

type DoctorProfile struct {
	UserID         uuid.UUID `json:"user_id"`
	Specialization string    `json:"specialization"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type TherapistProfile struct {
	UserID    uuid.UUID `json:"user_id"`
	Skills    []string  `json:"skills"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PatientProfile struct {
	UserID         uuid.UUID `json:"user_id"`
	MedicalHistory []string  `json:"medical_history"`
	Reports        []string  `json:"reports"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StaffMember is a directory entry: a doctor or therapist with the profile
// fields a booking or prescribing form shows.
type StaffMember struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Role           Role      `json:"role"`
	Specialization string    `json:"specialization,omitempty"`
	Skills         []string  `json:"skills,omitempty"`
}
