package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/db"
	"github.com/ayurveda/clinic/internal/platform/hipaa"
)

type repoPG struct {
	pool *pgxpool.Pool
	enc  hipaa.FieldEncryptor
}

// NewRepoPG returns the Postgres repository. With a non-nil enc, phone
// numbers and medical history are stored encrypted.
func NewRepoPG(pool *pgxpool.Pool, enc hipaa.FieldEncryptor) Repository {
	return &repoPG{pool: pool, enc: enc}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, auth_uid, name, email, phone, role, COALESCE(password_hash, ''), created_at, updated_at`

func (r *repoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.AuthUID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	if u.Phone, err = hipaa.Open(r.enc, u.Phone); err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	var hash *string
	if u.PasswordHash != "" {
		hash = &u.PasswordHash
	}
	phone, err := hipaa.Seal(r.enc, u.Phone)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, auth_uid, name, email, phone, role, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.AuthUID, u.Name, u.Email, phone, u.Role, hash,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("an account with this email already exists")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *repoPG) GetByAuthUID(ctx context.Context, uid string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE auth_uid = $1`, uid))
}

func (r *repoPG) List(ctx context.Context, role Role, limit, offset int) ([]*User, int, error) {
	var w db.Where
	if role != "" {
		w.Add("role = $%d", role)
	}
	where := w.String()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	q := `SELECT ` + userCols + ` FROM users` + where + ` ORDER BY name, id` + w.Page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, q, w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *repoPG) CountByRole(ctx context.Context) (map[Role]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	defer rows.Close()

	counts := make(map[Role]int, len(Roles))
	for rows.Next() {
		var role Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

func (r *repoPG) SaveDoctorProfile(ctx context.Context, p *DoctorProfile) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (user_id, specialization) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET specialization = EXCLUDED.specialization, updated_at = NOW()
		RETURNING updated_at`,
		p.UserID, p.Specialization,
	).Scan(&p.UpdatedAt)
}

func (r *repoPG) SaveTherapistProfile(ctx context.Context, p *TherapistProfile) error {
	if p.Skills == nil {
		p.Skills = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO therapists (user_id, skills) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET skills = EXCLUDED.skills, updated_at = NOW()
		RETURNING updated_at`,
		p.UserID, p.Skills,
	).Scan(&p.UpdatedAt)
}

func (r *repoPG) SavePatientProfile(ctx context.Context, p *PatientProfile) error {
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
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (user_id, medical_history, reports) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET medical_history = EXCLUDED.medical_history,
			reports = EXCLUDED.reports, updated_at = NOW()
		RETURNING updated_at`,
		p.UserID, history, p.Reports,
	).Scan(&p.UpdatedAt)
}

func (r *repoPG) GetDoctorProfile(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	p := DoctorProfile{UserID: userID}
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT specialization, updated_at FROM doctors WHERE user_id = $1`, userID,
	).Scan(&p.Specialization, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor profile")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) GetTherapistProfile(ctx context.Context, userID uuid.UUID) (*TherapistProfile, error) {
	p := TherapistProfile{UserID: userID}
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT skills, updated_at FROM therapists WHERE user_id = $1`, userID,
	).Scan(&p.Skills, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("therapist profile")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) GetPatientProfile(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	p := PatientProfile{UserID: userID}
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT medical_history, reports, updated_at FROM patients WHERE user_id = $1`, userID,
	).Scan(&p.MedicalHistory, &p.Reports, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient profile")
	}
	if err != nil {
		return nil, err
	}
	if p.MedicalHistory, err = hipaa.OpenAll(r.enc, p.MedicalHistory); err != nil {
		return nil, err
	}
	return &p, nil
}
