package feedback

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayurveda/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const cols = `id, patient_id, patient_name, doctor_id, appointment_id, message, rating, sentiment, created_at`

func scan(row pgx.Row) (*Feedback, error) {
	var f Feedback
	if err := row.Scan(&f.ID, &f.PatientID, &f.PatientName, &f.DoctorID, &f.AppointmentID,
		&f.Message, &f.Rating, &f.Sentiment, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repoPG) Create(ctx context.Context, f *Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO feedback (id, patient_id, patient_name, doctor_id, appointment_id, message, rating, sentiment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		f.ID, f.PatientID, f.PatientName, f.DoctorID, f.AppointmentID, f.Message, f.Rating, f.Sentiment,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Feedback, int, error) {
	var w db.Where
	if f.PatientID != nil {
		w.Add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		w.Add("doctor_id = $%d", *f.DoctorID)
	}
	where := w.String()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM feedback`+where, w.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count feedback: %w", err)
	}

	q := `SELECT ` + cols + ` FROM feedback` + where + ` ORDER BY created_at DESC, id` + w.Page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, q, w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		fb, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, fb)
	}
	return out, total, rows.Err()
}
