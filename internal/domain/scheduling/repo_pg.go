package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/db"
	"github.com/ayurveda/clinic/internal/platform/hipaa"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct {
	pool *pgxpool.Pool
	enc  hipaa.FieldEncryptor
}

// NewAppointmentRepoPG returns the Postgres appointment repository. With a
// non-nil enc, the visit reason and prescription notes are stored encrypted.
func NewAppointmentRepoPG(pool *pgxpool.Pool, enc hipaa.FieldEncryptor) AppointmentRepository {
	return &appointmentRepoPG{pool: pool, enc: enc}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, patient_name, doctor_id, doctor_name, date, time_of_day, reason,
	status, prescription, therapies, prescribed_at, created_at, updated_at`

func (r *appointmentRepoPG) scan(row pgx.Row) (*Appointment, error) {
	var (
		a         Appointment
		date      time.Time
		therapies []byte
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.DoctorID, &a.DoctorName, &date, &a.Time,
		&a.Reason, &a.Status, &a.Prescription, &therapies, &a.PrescribedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment")
	}
	if err != nil {
		return nil, err
	}
	a.Date = date.Format(DateLayout)
	if err := json.Unmarshal(therapies, &a.Therapies); err != nil {
		return nil, fmt.Errorf("decode therapies for appointment %s: %w", a.ID, err)
	}
	if a.Reason, err = hipaa.Open(r.enc, a.Reason); err != nil {
		return nil, err
	}
	if a.Prescription, err = hipaa.OpenPtr(r.enc, a.Prescription); err != nil {
		return nil, err
	}
	return &a, nil
}

func encodeTherapies(t []TherapyPrescription) ([]byte, error) {
	if t == nil {
		t = []TherapyPrescription{}
	}
	return json.Marshal(t)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	date, err := parseDate(a.Date)
	if err != nil {
		return fmt.Errorf("appointment date: %w", err)
	}
	therapies, err := encodeTherapies(a.Therapies)
	if err != nil {
		return err
	}
	reason, err := hipaa.Seal(r.enc, a.Reason)
	if err != nil {
		return err
	}
	prescription, err := hipaa.SealPtr(r.enc, a.Prescription)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, patient_name, doctor_id, doctor_name, date,
			time_of_day, reason, status, prescription, therapies, prescribed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.PatientName, a.DoctorID, a.DoctorName, date,
		a.Time, reason, a.Status, prescription, therapies, a.PrescribedAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	therapies, err := encodeTherapies(a.Therapies)
	if err != nil {
		return err
	}
	prescription, err := hipaa.SealPtr(r.enc, a.Prescription)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status = $2, prescription = $3, therapies = $4, prescribed_at = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, prescription, therapies, a.PrescribedAt,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("appointment")
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var w db.Where
	if f.PatientID != nil {
		w.Add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		w.Add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != "" {
		w.Add("status = $%d", f.Status)
	}
	if f.DateFrom != "" {
		w.Add("date >= $%d::date", f.DateFrom)
	}
	if f.DateTo != "" {
		w.Add("date <= $%d::date", f.DateTo)
	}
	where := w.String()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	q := `SELECT ` + apptCols + ` FROM appointments` + where + ` ORDER BY date, time_of_day, id` + w.Page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, q, w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// =========== Session Repository ===========

type sessionRepoPG struct {
	pool *pgxpool.Pool
	enc  hipaa.FieldEncryptor
}

// NewSessionRepoPG returns the Postgres session repository. With a non-nil
// enc, therapist notes are stored encrypted.
func NewSessionRepoPG(pool *pgxpool.Pool, enc hipaa.FieldEncryptor) SessionRepository {
	return &sessionRepoPG{pool: pool, enc: enc}
}

func (r *sessionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const sessionCols = `id, appointment_id, patient_id, patient_name, doctor_id, therapist_id, therapist_name,
	therapy_type, duration, status, session_number, total_sessions, starts_at, notes, created_at, updated_at`

func (r *sessionRepoPG) scan(row pgx.Row) (*TherapySession, error) {
	var s TherapySession
	err := row.Scan(&s.ID, &s.AppointmentID, &s.PatientID, &s.PatientName, &s.DoctorID, &s.TherapistID,
		&s.TherapistName, &s.TherapyType, &s.Duration, &s.Status, &s.SessionNumber, &s.TotalSessions,
		&s.StartsAt, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("therapy session")
	}
	if err != nil {
		return nil, err
	}
	if s.Notes, err = hipaa.OpenPtr(r.enc, s.Notes); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepoPG) Create(ctx context.Context, s *TherapySession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	notes, err := hipaa.SealPtr(r.enc, s.Notes)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO therapy_sessions (id, appointment_id, patient_id, patient_name, doctor_id,
			therapist_id, therapist_name, therapy_type, duration, status, session_number,
			total_sessions, starts_at, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		s.ID, s.AppointmentID, s.PatientID, s.PatientName, s.DoctorID,
		s.TherapistID, s.TherapistName, s.TherapyType, s.Duration, s.Status, s.SessionNumber,
		s.TotalSessions, s.StartsAt, notes, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert therapy session: %w", err)
	}
	return nil
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TherapySession, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM therapy_sessions WHERE id = $1`, id))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *TherapySession) error {
	notes, err := hipaa.SealPtr(r.enc, s.Notes)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE therapy_sessions SET status = $2, notes = $3, updated_at = $4 WHERE id = $1`,
		s.ID, s.Status, notes, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update therapy session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("therapy session")
	}
	return nil
}

func (r *sessionRepoPG) List(ctx context.Context, f SessionFilter, limit, offset int) ([]*TherapySession, int, error) {
	var w db.Where
	if f.PatientID != nil {
		w.Add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		w.Add("doctor_id = $%d", *f.DoctorID)
	}
	if f.TherapistID != nil {
		w.Add("therapist_id = $%d", *f.TherapistID)
	}
	if f.AppointmentID != nil {
		w.Add("appointment_id = $%d", *f.AppointmentID)
	}
	if f.Status != "" {
		w.Add("status = $%d", f.Status)
	}
	if f.From != nil {
		w.Add("starts_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.Add("starts_at <= $%d", *f.To)
	}
	where := w.String()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM therapy_sessions`+where, w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count therapy sessions: %w", err)
	}

	q := `SELECT ` + sessionCols + ` FROM therapy_sessions` + where +
		` ORDER BY starts_at, session_number, id` + w.Page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, q, w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list therapy sessions: %w", err)
	}
	defer rows.Close()

	var out []*TherapySession
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
