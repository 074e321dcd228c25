package identity

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores users and their role profiles. Lookups return an error
// wrapping apperr.ErrNotFound when nothing matches, and Create returns one
// wrapping apperr.ErrConflict for a duplicate email.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByAuthUID(ctx context.Context, uid string) (*User, error)
	List(ctx context.Context, role Role, limit, offset int) ([]*User, int, error)
	CountByRole(ctx context.Context) (map[Role]int, error)

	SaveDoctorProfile(ctx context.Context, p *DoctorProfile) error
	SaveTherapistProfile(ctx context.Context, p *TherapistProfile) error
	SavePatientProfile(ctx context.Context, p *PatientProfile) error
	GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error)
	GetTherapistProfile(ctx context.Context, userID uuid.UUID) (*TherapistProfile, error)
	GetPatientProfile(ctx context.Context, userID uuid.UUID) (*PatientProfile, error)
}

// Transactor groups repository writes. The Postgres and Firestore backends
// both provide one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
