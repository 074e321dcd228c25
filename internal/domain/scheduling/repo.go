package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AppointmentRepository stores appointments with their embedded therapy
// prescriptions. GetByID returns an error wrapping apperr.ErrNotFound when
// the appointment does not exist. A limit of 0 lists everything.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}

// SessionRepository stores therapy sessions. Each Create is an independent
// write unless ctx carries a transaction.
type SessionRepository interface {
	Create(ctx context.Context, s *TherapySession) error
	GetByID(ctx context.Context, id uuid.UUID) (*TherapySession, error)
	Update(ctx context.Context, s *TherapySession) error
	List(ctx context.Context, f SessionFilter, limit, offset int) ([]*TherapySession, int, error)
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WriteLimiter is implemented by transactors whose backend caps the number
// of writes one transaction may commit.
type WriteLimiter interface {
	MaxWrites() int
}
