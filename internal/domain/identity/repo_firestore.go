package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/docstore"
	"github.com/ayurveda/clinic/internal/platform/hipaa"
)

// userDoc mirrors a document in the users collection.
type userDoc struct {
	AuthUID      string    `firestore:"authUid,omitempty"`
	Name         string    `firestore:"name"`
	Email        string    `firestore:"email"`
	Phone        string    `firestore:"phone"`
	Role         string    `firestore:"role"`
	PasswordHash string    `firestore:"passwordHash,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func toUserDoc(u *User) userDoc {
	d := userDoc{
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         string(u.Role),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.AuthUID != nil {
		d.AuthUID = *u.AuthUID
	}
	return d
}

func (d userDoc) toUser(id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("user document %q: %w", id, err)
	}
	u := &User{
		ID:           uid,
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		Role:         Role(d.Role),
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.AuthUID != "" {
		authUID := d.AuthUID
		u.AuthUID = &authUID
	}
	return u, nil
}

type doctorDoc struct {
	Specialization string    `firestore:"specialization"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type therapistDoc struct {
	Skills    []string  `firestore:"skills"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type patientDoc struct {
	MedicalHistory []string  `firestore:"medicalHistory"`
	Reports        []string  `firestore:"reports"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type repoFirestore struct {
	client *firestore.Client
	enc    hipaa.FieldEncryptor
}

// NewRepoFirestore returns the Firestore repository. With a non-nil enc,
// phone numbers and medical history are stored encrypted.
func NewRepoFirestore(client *firestore.Client, enc hipaa.FieldEncryptor) Repository {
	return &repoFirestore{client: client, enc: enc}
}

func (r *repoFirestore) decode(s *firestore.DocumentSnapshot) (*User, error) {
	var d userDoc
	if err := s.DataTo(&d); err != nil {
		return nil, err
	}
	return r.toUser(d, s.Ref.ID)
}

func (r *repoFirestore) toUser(d userDoc, id string) (*User, error) {
	u, err := d.toUser(id)
	if err != nil {
		return nil, err
	}
	if u.Phone, err = hipaa.Open(r.enc, u.Phone); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *repoFirestore) users() *firestore.CollectionRef {
	return r.client.Collection(docstore.Users)
}

func (r *repoFirestore) first(ctx context.Context, q firestore.Query) (*User, error) {
	snaps, err := docstore.All(ctx, q.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, apperr.NotFound("user")
	}
	return r.decode(snaps[0])
}

func (r *repoFirestore) Create(ctx context.Context, u *User) error {
	if _, err := r.GetByEmail(ctx, u.Email); err == nil {
		return apperr.Conflict("an account with this email already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	d := toUserDoc(u)
	var err error
	if d.Phone, err = hipaa.Seal(r.enc, d.Phone); err != nil {
		return err
	}
	if err := docstore.Create(ctx, r.users().Doc(u.ID.String()), d); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *repoFirestore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var d userDoc
	if err := docstore.Get(ctx, r.users().Doc(id.String()), &d); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return r.toUser(d, id.String())
}

func (r *repoFirestore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.first(ctx, r.users().Where("email", "==", email))
}

func (r *repoFirestore) GetByAuthUID(ctx context.Context, uid string) (*User, error) {
	return r.first(ctx, r.users().Where("authUid", "==", uid))
}

func (r *repoFirestore) all(ctx context.Context, role Role) ([]*User, error) {
	q := r.users().Query
	if role != "" {
		q = q.Where("role", "==", string(role))
	}
	snaps, err := docstore.All(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]*User, 0, len(snaps))
	for _, s := range snaps {
		u, err := r.decode(s)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *repoFirestore) List(ctx context.Context, role Role, limit, offset int) ([]*User, int, error) {
	users, err := r.all(ctx, role)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID.String() < users[j].ID.String()
	})
	return docstore.Page(users, limit, offset), len(users), nil
}

func (r *repoFirestore) CountByRole(ctx context.Context) (map[Role]int, error) {
	users, err := r.all(ctx, "")
	if err != nil {
		return nil, err
	}
	counts := make(map[Role]int, len(Roles))
	for _, u := range users {
		counts[u.Role]++
	}
	return counts, nil
}

func (r *repoFirestore) SaveDoctorProfile(ctx context.Context, p *DoctorProfile) error {
	p.UpdatedAt = time.Now().UTC()
	ref := r.client.Collection(docstore.Doctors).Doc(p.UserID.String())
	return docstore.Set(ctx, ref, doctorDoc{Specialization: p.Specialization, UpdatedAt: p.UpdatedAt})
}

func (r *repoFirestore) SaveTherapistProfile(ctx context.Context, p *TherapistProfile) error {
	p.UpdatedAt = time.Now().UTC()
	if p.Skills == nil {
		p.Skills = []string{}
	}
	ref := r.client.Collection(docstore.Therapists).Doc(p.UserID.String())
	return docstore.Set(ctx, ref, therapistDoc{Skills: p.Skills, UpdatedAt: p.UpdatedAt})
}

func (r *repoFirestore) SavePatientProfile(ctx context.Context, p *PatientProfile) error {
	p.UpdatedAt = time.Now().UTC()
	if p.MedicalHistory == nil {
		p.MedicalHistory = []string{}
	}
	if p.Reports == nil {
		p.Reports = []string{}
	}
	history, err := hipaa.SealAll(r.enc, p.MedicalHistory)
	if err != nil {
		return err
	}
	ref := r.client.Collection(docstore.Patients).Doc(p.UserID.String())
	return docstore.Set(ctx, ref, patientDoc{MedicalHistory: history, Reports: p.Reports, UpdatedAt: p.UpdatedAt})
}

func (r *repoFirestore) GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	var d doctorDoc
	if err := docstore.Get(ctx, r.client.Collection(docstore.Doctors).Doc(userID.String()), &d); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperr.NotFound("doctor profile")
		}
		return nil, err
	}
	return &DoctorProfile{UserID: userID, Specialization: d.Specialization, UpdatedAt: d.UpdatedAt}, nil
}

func (r *repoFirestore) GetTherapistProfile(ctx context.Context, userID uuid.UUID) (*TherapistProfile, error) {
	var d therapistDoc
	if err := docstore.Get(ctx, r.client.Collection(docstore.Therapists).Doc(userID.String()), &d); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperr.NotFound("therapist profile")
		}
		return nil, err
	}
	return &TherapistProfile{UserID: userID, Skills: d.Skills, UpdatedAt: d.UpdatedAt}, nil
}

func (r *repoFirestore) GetPatientProfile(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	var d patientDoc
	if err := docstore.Get(ctx, r.client.Collection(docstore.Patients).Doc(userID.String()), &d); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperr.NotFound("patient profile")
		}
		return nil, err
	}
	history, err := hipaa.OpenAll(r.enc, d.MedicalHistory)
	if err != nil {
		return nil, err
	}
	return &PatientProfile{UserID: userID, MedicalHistory: history, Reports: d.Reports, UpdatedAt: d.UpdatedAt}, nil
}
