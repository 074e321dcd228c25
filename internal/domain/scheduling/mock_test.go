package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/platform/apperr"
)

var errWrite = errors.New("write failed")

type mockAppointmentRepo struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*Appointment
	failWrite bool
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{items: make(map[uuid.UUID]*Appointment)}
}

func cloneAppointment(a *Appointment) *Appointment {
	cp := *a
	cp.Therapies = append([]TherapyPrescription(nil), a.Therapies...)
	return &cp
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.items[a.ID] = cloneAppointment(a)
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return cloneAppointment(a), nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errWrite
	}
	if _, ok := m.items[a.ID]; !ok {
		return apperr.NotFound("appointment")
	}
	a.UpdatedAt = time.Now()
	m.items[a.ID] = cloneAppointment(a)
	return nil
}

func (m *mockAppointmentRepo) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		if f.Match(a) {
			out = append(out, cloneAppointment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date+out[i].Time < out[j].Date+out[j].Time })
	return page(out, limit, offset), len(out), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type mockSessionRepo struct {
	mu      sync.Mutex
	items   []*TherapySession
	creates int
	// failOn makes the n-th Create call (1-based) fail.
	failOn int
}

func (m *mockSessionRepo) Create(_ context.Context, s *TherapySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.failOn > 0 && m.creates == m.failOn {
		return errWrite
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*TherapySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("therapy session")
}

func (m *mockSessionRepo) Update(_ context.Context, s *TherapySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.items {
		if existing.ID == s.ID {
			cp := *s
			m.items[i] = &cp
			return nil
		}
	}
	return apperr.NotFound("therapy session")
}

func (m *mockSessionRepo) List(_ context.Context, f SessionFilter, limit, offset int) ([]*TherapySession, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TherapySession
	for _, s := range m.items {
		if f.Match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return page(out, limit, offset), len(out), nil
}

func (m *mockSessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// snapshotTx rolls the mock stores back when fn fails.
type snapshotTx struct {
	appts    *mockAppointmentRepo
	sessions *mockSessionRepo
}

func (t *snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.sessions.mu.Lock()
	savedSessions := append([]*TherapySession(nil), t.sessions.items...)
	t.sessions.mu.Unlock()
	t.appts.mu.Lock()
	savedAppts := make(map[uuid.UUID]*Appointment, len(t.appts.items))
	for id, a := range t.appts.items {
		savedAppts[id] = cloneAppointment(a)
	}
	t.appts.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.sessions.mu.Lock()
		t.sessions.items = savedSessions
		t.sessions.mu.Unlock()
		t.appts.mu.Lock()
		t.appts.items = savedAppts
		t.appts.mu.Unlock()
		return err
	}
	return nil
}

// cappedTx is a snapshotTx whose backend accepts at most max writes.
type cappedTx struct {
	*snapshotTx
	max int
}

func (t *cappedTx) MaxWrites() int { return t.max }

type mockUsers map[uuid.UUID]*identity.User

func (m mockUsers) GetWithRole(_ context.Context, id uuid.UUID, role identity.Role) (*identity.User, error) {
	u, ok := m[id]
	if !ok || u.Role != role {
		return nil, apperr.NotFound(string(role))
	}
	return u, nil
}

func (m mockUsers) add(name string, role identity.Role) *identity.User {
	u := &identity.User{ID: uuid.New(), Name: name, Email: name + "@clinic.in", Role: role}
	m[u.ID] = u
	return u
}

type fixture struct {
	svc       *Service
	appts     *mockAppointmentRepo
	sessions  *mockSessionRepo
	users     mockUsers
	patient   *identity.User
	doctor    *identity.User
	therapist *identity.User
	admin     *identity.User
}

var fixedNow = time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)

func newFixture(withTx bool) *fixture {
	f := &fixture{
		appts:    newMockAppointmentRepo(),
		sessions: &mockSessionRepo{},
		users:    mockUsers{},
	}
	f.patient = f.users.add("Asha", identity.RolePatient)
	f.doctor = f.users.add("Rao", identity.RoleDoctor)
	f.therapist = f.users.add("Meena", identity.RoleTherapist)
	f.admin = f.users.add("Admin", identity.RoleAdmin)

	var tx Transactor
	if withTx {
		tx = &snapshotTx{appts: f.appts, sessions: f.sessions}
	}
	f.svc = NewService(f.appts, f.sessions, f.users, tx, time.UTC)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) book(date, tod string) *Appointment {
	a, err := f.svc.Book(context.Background(), f.patient, BookInput{DoctorID: f.doctor.ID, Date: date, Time: tod, Reason: "back pain"})
	if err != nil {
		panic(err)
	}
	return a
}

func (f *fixture) therapy(name string, sessions int) TherapyPrescription {
	return TherapyPrescription{TherapyType: name, Duration: 45, TherapistID: f.therapist.ID, Sessions: sessions}
}
