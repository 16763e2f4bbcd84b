package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/repository"
)

type fakeUserStore struct {
	byEmail map[string]*repository.User
	nextID  int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: make(map[string]*repository.User)}
}

func (f *fakeUserStore) Create(_ context.Context, u *repository.User) error {
	if _, exists := f.byEmail[u.Email]; exists {
		return errors.New(errors.ErrCodeConflict, "email already registered")
	}
	f.nextID++
	u.ID = string(rune('a' + f.nextID))
	u.CreatedAt = time.Now()
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errors.NotFound("user", email)
	}
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*repository.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errors.NotFound("user", id)
}

func newTestAuth(ttl time.Duration) *AuthService {
	return NewAuthService(newFakeUserStore(), []byte("test-secret"), ttl, zerolog.Nop())
}

func TestRegisterLoginVerify(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(time.Hour)

	u, err := auth.Register(ctx, "sup@site.test", "Pat", "strong-password", SiteRoleSupervisor)
	if err != nil {
		t.Fatal(err)
	}
	if u.PasswordHash == "strong-password" {
		t.Fatal("password stored in the clear")
	}

	token, loggedIn, err := auth.Login(ctx, "sup@site.test", "strong-password")
	if err != nil {
		t.Fatal(err)
	}
	if loggedIn.ID != u.ID {
		t.Errorf("login returned user %s, want %s", loggedIn.ID, u.ID)
	}

	id, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != u.ID || id.Role != SiteRoleSupervisor {
		t.Errorf("identity = %+v", id)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(time.Hour)

	_, err := auth.Register(ctx, "", "Pat", "strong-password", SiteRoleSupervisor)
	wantErrCode(t, err, errors.ErrCodeInvalidInput)

	_, err = auth.Register(ctx, "a@b.test", "Pat", "short", SiteRoleSupervisor)
	wantErrCode(t, err, errors.ErrCodeInvalidInput)

	_, err = auth.Register(ctx, "a@b.test", "Pat", "strong-password", "janitor")
	wantErrCode(t, err, errors.ErrCodeInvalidInput)

	if _, err := auth.Register(ctx, "a@b.test", "Pat", "strong-password", SiteRoleSiteLeader); err != nil {
		t.Fatal(err)
	}
	_, err = auth.Register(ctx, "a@b.test", "Other", "strong-password", SiteRoleSiteLeader)
	wantErrCode(t, err, errors.ErrCodeConflict)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	auth := newTestAuth(time.Hour)

	if _, err := auth.Register(ctx, "sup@site.test", "Pat", "strong-password", SiteRoleSupervisor); err != nil {
		t.Fatal(err)
	}

	_, _, errUnknown := auth.Login(ctx, "nobody@site.test", "strong-password")
	_, _, errWrongPw := auth.Login(ctx, "sup@site.test", "wrong-password")

	wantErrCode(t, errUnknown, errors.ErrCodeUnauthorized)
	wantErrCode(t, errWrongPw, errors.ErrCodeUnauthorized)
	if errors.Message(errUnknown) != errors.Message(errWrongPw) {
		t.Error("unknown email and wrong password must be indistinguishable")
	}
}

func TestVerifyTokenRejectsGarbageAndExpiry(t *testing.T) {
	ctx := context.Background()

	if _, err := newTestAuth(time.Hour).VerifyToken("not-a-token"); errors.Code(err) != errors.ErrCodeUnauthorized {
		t.Errorf("garbage token: got %v", err)
	}

	expired := newTestAuth(-time.Minute)
	if _, err := expired.Register(ctx, "sup@site.test", "Pat", "strong-password", SiteRoleSupervisor); err != nil {
		t.Fatal(err)
	}
	token, _, err := expired.Login(ctx, "sup@site.test", "strong-password")
	if err != nil {
		t.Fatal(err)
	}
	_, err = expired.VerifyToken(token)
	wantErrCode(t, err, errors.ErrCodeUnauthorized)
}
