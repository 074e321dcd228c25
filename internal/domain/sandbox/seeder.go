// Package sandbox fills a development store with reproducible demo data:
// staff accounts, patients, booked consultations and expanded therapy plans.
// Everything goes through the domain services so the data obeys the same
// validation as real traffic.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/domain/scheduling"
)

// SeedConfig controls the volume and shape of the generated data.
type SeedConfig struct {
	Doctors    int
	Therapists int
	Patients   int
	// TherapiesPerPlan is the maximum number of therapies per prescription.
	TherapiesPerPlan int
	Password         string
	Seed             int64
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Doctors:          2,
		Therapists:       3,
		Patients:         6,
		TherapiesPerPlan: 2,
		Password:         "ayurveda-demo",
		Seed:             42,
	}
}

func (c SeedConfig) validate() error {
	switch {
	case c.Doctors < 1:
		return fmt.Errorf("at least one doctor is required")
	case c.Therapists < 1:
		return fmt.Errorf("at least one therapist is required")
	case c.Patients < 0:
		return fmt.Errorf("patient count must not be negative")
	case c.TherapiesPerPlan < 1:
		return fmt.Errorf("therapies per plan must be at least 1")
	}
	return nil
}

// Accounts is the identity surface the seeder writes through.
type Accounts interface {
	SignUp(ctx context.Context, in identity.SignUpInput) (*identity.User, error)
	CreateStaff(ctx context.Context, in identity.StaffInput) (*identity.StaffMember, error)
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// Clinic is the scheduling surface the seeder writes through.
type Clinic interface {
	Book(ctx context.Context, patient *identity.User, in scheduling.BookInput) (*scheduling.Appointment, error)
	SavePrescription(ctx context.Context, actor *identity.User, id uuid.UUID, in scheduling.SavePrescriptionInput) (*scheduling.PrescriptionResult, error)
	Location() *time.Location
}

type SeedResult struct {
	Doctors      int `json:"doctors"`
	Therapists   int `json:"therapists"`
	Patients     int `json:"patients"`
	Appointments int `json:"appointments"`
	Sessions     int `json:"sessions"`
}

type therapyDef struct {
	name     string
	duration int
}

var (
	firstNames = []string{
		"Aarav", "Diya", "Ishaan", "Kavya", "Rohan", "Ananya", "Vihaan", "Meera",
		"Arjun", "Saanvi", "Kabir", "Nila", "Dev", "Priya", "Aditya", "Lakshmi",
	}
	lastNames = []string{
		"Sharma", "Iyer", "Menon", "Nair", "Rao", "Kulkarni", "Pillai", "Desai",
		"Reddy", "Joshi", "Varma", "Bhat",
	}
	specializations = []string{"Kayachikitsa", "Panchakarma", "Shalakya", "Rasayana"}
	therapies       = []therapyDef{
		{"Abhyanga", 60}, {"Shirodhara", 45}, {"Swedana", 30},
		{"Nasya", 20}, {"Basti", 45}, {"Pizhichil", 60},
	}
	reasons = []string{
		"Chronic lower back pain", "Stress and poor sleep", "Digestive discomfort",
		"Joint stiffness", "Migraine", "General wellness consultation",
	}
	slots = []string{"09:00", "10:30", "12:00", "14:00", "15:30", "17:00"}
)

type Seeder struct {
	accounts Accounts
	clinic   Clinic
	now      func() time.Time
}

func NewSeeder(accounts Accounts, clinic Clinic) *Seeder {
	return &Seeder{accounts: accounts, clinic: clinic, now: time.Now}
}

// Seed creates cfg.Doctors doctors, cfg.Therapists therapists and
// cfg.Patients patients. Each patient books one consultation in the coming
// week, and every second consultation gets a prescription. The same seed
// always produces the same names, emails and plans.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	res := &SeedResult{}
	name := func() string {
		return firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
	}
	email := func(role string, i int) string {
		return fmt.Sprintf("%s%d.%d@demo.clinic", role, i+1, cfg.Seed)
	}

	doctors := make([]*identity.User, 0, cfg.Doctors)
	for i := 0; i < cfg.Doctors; i++ {
		m, err := s.accounts.CreateStaff(ctx, identity.StaffInput{
			Name:           "Dr. " + name(),
			Email:          email("doctor", i),
			Password:       cfg.Password,
			Role:           string(identity.RoleDoctor),
			Specialization: specializations[rng.Intn(len(specializations))],
		})
		if err != nil {
			return res, fmt.Errorf("seed doctor %d: %w", i+1, err)
		}
		u, err := s.accounts.GetUser(ctx, m.ID)
		if err != nil {
			return res, fmt.Errorf("load doctor %d: %w", i+1, err)
		}
		doctors = append(doctors, u)
		res.Doctors++
	}

	therapists := make([]*identity.StaffMember, 0, cfg.Therapists)
	for i := 0; i < cfg.Therapists; i++ {
		skills := []string{therapies[rng.Intn(len(therapies))].name, therapies[rng.Intn(len(therapies))].name}
		m, err := s.accounts.CreateStaff(ctx, identity.StaffInput{
			Name:     name(),
			Email:    email("therapist", i),
			Password: cfg.Password,
			Role:     string(identity.RoleTherapist),
			Skills:   skills,
		})
		if err != nil {
			return res, fmt.Errorf("seed therapist %d: %w", i+1, err)
		}
		therapists = append(therapists, m)
		res.Therapists++
	}

	today := s.now().In(s.clinic.Location())
	for i := 0; i < cfg.Patients; i++ {
		patient, err := s.accounts.SignUp(ctx, identity.SignUpInput{
			Name:     name(),
			Email:    email("patient", i),
			Phone:    fmt.Sprintf("+91 9%09d", rng.Intn(1000000000)),
			Password: cfg.Password,
		})
		if err != nil {
			return res, fmt.Errorf("seed patient %d: %w", i+1, err)
		}
		res.Patients++

		doctor := doctors[rng.Intn(len(doctors))]
		appt, err := s.clinic.Book(ctx, patient, scheduling.BookInput{
			DoctorID: doctor.ID,
			Date:     today.AddDate(0, 0, 1+rng.Intn(7)).Format(scheduling.DateLayout),
			Time:     slots[rng.Intn(len(slots))],
			Reason:   reasons[rng.Intn(len(reasons))],
		})
		if err != nil {
			return res, fmt.Errorf("book for patient %d: %w", i+1, err)
		}
		res.Appointments++

		if i%2 == 1 {
			continue
		}
		plan := s.plan(rng, cfg.TherapiesPerPlan, therapists)
		out, err := s.clinic.SavePrescription(ctx, doctor, appt.ID, scheduling.SavePrescriptionInput{
			Prescription: "Triphala churna at bedtime; warm, light diet.",
			Therapies:    plan,
		})
		if err != nil {
			return res, fmt.Errorf("prescribe for patient %d: %w", i+1, err)
		}
		res.Sessions += len(out.Sessions)
	}
	return res, nil
}

// plan picks between 1 and maxTherapies distinct therapies, each with 3 to 7 sessions.
func (s *Seeder) plan(rng *rand.Rand, maxTherapies int, therapists []*identity.StaffMember) []scheduling.TherapyPrescription {
	n := 1 + rng.Intn(maxTherapies)
	if n > len(therapies) {
		n = len(therapies)
	}
	order := rng.Perm(len(therapies))[:n]
	out := make([]scheduling.TherapyPrescription, 0, n)
	for _, idx := range order {
		t := therapies[idx]
		th := therapists[rng.Intn(len(therapists))]
		out = append(out, scheduling.TherapyPrescription{
			TherapyType: t.name,
			Duration:    t.duration,
			TherapistID: th.ID,
			Sessions:    3 + rng.Intn(5),
		})
	}
	return out
}
