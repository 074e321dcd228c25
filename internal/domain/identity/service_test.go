package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/auth"
)

func TestSignUp_CreatesPatientWithProfile(t *testing.T) {
	svc, repo := newTestService()
	u, err := svc.SignUp(context.Background(), SignUpInput{Email: " Asha@Example.com ", Password: "secret1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != RolePatient {
		t.Errorf("expected patient role, got %s", u.Role)
	}
	if u.Email != "asha@example.com" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}
	if u.Name != "asha" {
		t.Errorf("expected name from email local part, got %q", u.Name)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret1" {
		t.Error("expected hashed password")
	}
	if _, ok := repo.patients[u.ID]; !ok {
		t.Error("expected patient profile to be created")
	}
}

func TestSignUp_ShortPassword(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.SignUp(context.Background(), SignUpInput{Email: "a@example.com", Password: "12345"})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
}

func TestSignUp_ConfirmPassword(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, SignUpInput{Email: "meera@example.com", Password: "secret1", ConfirmPassword: "secret2"})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Field != "confirm_password" {
		t.Fatalf("expected confirm_password validation error, got %v", err)
	}
	if len(repo.users) != 0 {
		t.Fatal("expected no account for mismatched passwords")
	}

	if _, err := svc.SignUp(ctx, SignUpInput{Email: "meera@example.com", Password: "secret1", ConfirmPassword: "secret1"}); err != nil {
		t.Fatalf("matching confirmation: unexpected error: %v", err)
	}
}

func TestSignUp_InvalidEmail(t *testing.T) {
	svc, _ := newTestService()
	for _, email := range []string{"", "not-an-email", "Bob <bob@example.com>"} {
		_, err := svc.SignUp(context.Background(), SignUpInput{Email: email, Password: "secret1"})
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("email %q: expected validation error, got %v", email, err)
		}
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpInput{Email: "dup@example.com", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.SignUp(ctx, SignUpInput{Email: "DUP@example.com", Password: "secret2"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSignUp_ExternalIdentitySkipsPassword(t *testing.T) {
	svc, _ := newTestService()
	u, err := svc.SignUp(context.Background(), SignUpInput{Email: "ext@example.com", AuthUID: "firebase-uid-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.AuthUID == nil || *u.AuthUID != "firebase-uid-1" {
		t.Errorf("expected auth uid to be stored, got %v", u.AuthUID)
	}
	if u.PasswordHash != "" {
		t.Error("expected no password hash for external sign-up")
	}

	got, err := svc.ResolveSubject(context.Background(), "firebase-uid-1")
	if err != nil || got.ID != u.ID {
		t.Fatalf("expected subject to resolve to user, got %v %v", got, err)
	}
}

func TestCreateStaff(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	doc, err := svc.CreateStaff(ctx, StaffInput{
		Name: "Dr. Rao", Email: "rao@clinic.in", Phone: "98450", Password: "secret1",
		Role: "doctor", Specialization: " Panchakarma ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Specialization != "Panchakarma" {
		t.Errorf("expected trimmed specialization, got %q", doc.Specialization)
	}
	if repo.doctors[doc.ID] == nil {
		t.Error("expected doctor profile")
	}

	th, err := svc.CreateStaff(ctx, StaffInput{
		Name: "Meena", Email: "meena@clinic.in", Phone: "98451", Password: "secret1",
		Role: "Therapist", Skills: []string{"Abhyanga", " abhyanga", "", "Shirodhara"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(th.Skills) != 2 {
		t.Errorf("expected deduplicated skills, got %v", th.Skills)
	}
}

func TestCreateStaff_Validation(t *testing.T) {
	svc, _ := newTestService()
	base := StaffInput{Name: "X", Email: "x@clinic.in", Phone: "1", Password: "secret1", Role: "doctor"}
	tests := []struct {
		name   string
		mutate func(*StaffInput)
		field  string
	}{
		{"patient role", func(in *StaffInput) { in.Role = "patient" }, "role"},
		{"admin role", func(in *StaffInput) { in.Role = "admin" }, "role"},
		{"no name", func(in *StaffInput) { in.Name = " " }, "name"},
		{"no phone", func(in *StaffInput) { in.Phone = "" }, "phone"},
		{"short password", func(in *StaffInput) { in.Password = "abc" }, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := svc.CreateStaff(context.Background(), in)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected %s validation error, got %v", tt.field, err)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u, err := svc.SignUp(ctx, SignUpInput{Email: "p@example.com", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Login(ctx, "P@example.com", "secret1", "patient")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Token == "" || res.User.ID != u.ID {
		t.Errorf("unexpected login result: %+v", res)
	}

	if _, err := svc.Login(ctx, "p@example.com", "wrong", "patient"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected unauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "secret1", "patient"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestLogin_RoleMismatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpInput{Email: "p@example.com", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Login(ctx, "p@example.com", "secret1", "doctor")
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err.Error() != "this account is registered as patient" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestLogin_DisabledWithoutIssuer(t *testing.T) {
	svc := NewService(newMockRepo(), nil, nil)
	if _, err := svc.Login(context.Background(), "a@b.c", "secret1", "patient"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResolveSubject(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	dev, err := svc.ResolveSubject(ctx, auth.DevSubject)
	if err != nil || dev.Role != RoleAdmin {
		t.Fatalf("expected dev admin, got %v %v", dev, err)
	}

	u, _ := svc.SignUp(ctx, SignUpInput{Email: "p@example.com", Password: "secret1"})
	got, err := svc.ResolveSubject(ctx, u.ID.String())
	if err != nil || got.Email != u.Email {
		t.Fatalf("expected user by id, got %v %v", got, err)
	}

	if _, err := svc.ResolveSubject(ctx, uuid.NewString()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGetWithRole(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u, _ := svc.SignUp(ctx, SignUpInput{Email: "p@example.com", Password: "secret1"})

	if _, err := svc.GetWithRole(ctx, u.ID, RolePatient); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	_, err := svc.GetWithRole(ctx, u.ID, RoleDoctor)
	if !errors.Is(err, apperr.ErrNotFound) || err.Error() != "doctor not found" {
		t.Errorf("expected doctor not found, got %v", err)
	}
}

func TestDirectory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, name := range []string{"Zed", "Anu"} {
		if _, err := svc.CreateStaff(ctx, StaffInput{
			Name: name, Email: name + "@clinic.in", Phone: "1", Password: "secret1",
			Role: "therapist", Skills: []string{"Basti"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := svc.Directory(ctx, RoleTherapist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Anu" || len(list[0].Skills) != 1 {
		t.Errorf("unexpected directory: %+v", list)
	}
	if _, err := svc.Directory(ctx, RolePatient); err == nil {
		t.Error("expected error for patient directory")
	}
}

func TestUpdateProfile_OwnerOrAdmin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doc, _ := svc.CreateStaff(ctx, StaffInput{Name: "D", Email: "d@clinic.in", Phone: "1", Password: "secret1", Role: "doctor"})
	other, _ := svc.CreateStaff(ctx, StaffInput{Name: "E", Email: "e@clinic.in", Phone: "1", Password: "secret1", Role: "doctor"})

	self := &User{ID: doc.ID, Role: RoleDoctor}
	p, err := svc.UpdateDoctorProfile(ctx, self, doc.ID, "Kayachikitsa")
	if err != nil || p.Specialization != "Kayachikitsa" {
		t.Fatalf("expected update by owner, got %v %v", p, err)
	}

	if _, err := svc.UpdateDoctorProfile(ctx, self, other.ID, "x"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another doctor, got %v", err)
	}

	admin := &DevAdmin
	if _, err := svc.UpdateDoctorProfile(ctx, admin, other.ID, "Shalya"); err != nil {
		t.Errorf("expected admin update to succeed, got %v", err)
	}
	if _, err := svc.UpdateTherapistProfile(ctx, admin, other.ID, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for non-therapist, got %v", err)
	}
}

func TestListUsers_UnknownRole(t *testing.T) {
	svc, _ := newTestService()
	if _, _, err := svc.ListUsers(context.Background(), "nurse", 10, 0); err == nil {
		t.Error("expected error for unknown role")
	}
}

type recordingTx struct {
	calls int
}

func (r *recordingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

func TestSignUp_UsesTransactor(t *testing.T) {
	tx := &recordingTx{}
	repo := newMockRepo()
	repo.failSave = errors.New("boom")
	svc := NewService(repo, tx, fakeIssuer{})

	_, err := svc.SignUp(context.Background(), SignUpInput{Email: "t@example.com", Password: "secret1"})
	if err == nil {
		t.Fatal("expected profile error to surface")
	}
	if tx.calls != 1 {
		t.Errorf("expected one transaction, got %d", tx.calls)
	}
}
