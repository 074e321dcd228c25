package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/platform/apperr"
)

type mockRepo struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*User
	doctors    map[uuid.UUID]*DoctorProfile
	therapists map[uuid.UUID]*TherapistProfile
	patients   map[uuid.UUID]*PatientProfile
	failSave   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:      make(map[uuid.UUID]*User),
		doctors:    make(map[uuid.UUID]*DoctorProfile),
		therapists: make(map[uuid.UUID]*TherapistProfile),
		patients:   make(map[uuid.UUID]*PatientProfile),
	}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperr.Conflict("an account with this email already exists")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) find(match func(*User) bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return u.Email == email })
}

func (m *mockRepo) GetByAuthUID(_ context.Context, uid string) (*User, error) {
	return m.find(func(u *User) bool { return u.AuthUID != nil && *u.AuthUID == uid })
}

func (m *mockRepo) List(_ context.Context, role Role, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if role == "" || u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) CountByRole(_ context.Context) (map[Role]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Role]int)
	for _, u := range m.users {
		counts[u.Role]++
	}
	return counts, nil
}

func (m *mockRepo) SaveDoctorProfile(_ context.Context, p *DoctorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.doctors[p.UserID] = p
	return nil
}

func (m *mockRepo) SaveTherapistProfile(_ context.Context, p *TherapistProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.therapists[p.UserID] = p
	return nil
}

func (m *mockRepo) SavePatientProfile(_ context.Context, p *PatientProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.patients[p.UserID] = p
	return nil
}

func (m *mockRepo) GetDoctorProfile(_ context.Context, id uuid.UUID) (*DoctorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.doctors[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("doctor profile")
}

func (m *mockRepo) GetTherapistProfile(_ context.Context, id uuid.UUID) (*TherapistProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.therapists[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("therapist profile")
}

func (m *mockRepo) GetPatientProfile(_ context.Context, id uuid.UUID) (*PatientProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.patients[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("patient profile")
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID, role, email string) (string, time.Time, error) {
	return "token-" + userID + "-" + role, time.Now().Add(time.Hour), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, nil, fakeIssuer{}), repo
}
