package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/auth"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (m *memUsers) Create(_ context.Context, email, name, hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, models.ErrConflict
		}
	}
	u := &models.User{ID: uuid.New(), Email: email, DisplayName: name, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	if u.EmailVerifiedAt == nil {
		now := time.Now()
		u.EmailVerifiedAt = &now
	}
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memProfiles struct{ created []uuid.UUID }

func (m *memProfiles) Create(_ context.Context, p *models.Profile) (*models.Profile, error) {
	m.created = append(m.created, p.UserID)
	return p, nil
}

type memRoles map[uuid.UUID][]models.Role

func (m memRoles) Grant(_ context.Context, id uuid.UUID, role models.Role) error {
	m[id] = append(m[id], role)
	return nil
}

func (m memRoles) HasRole(_ context.Context, id uuid.UUID, role models.Role) (bool, error) {
	for _, r := range m[id] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type captureMailer struct {
	links map[string]string
	sent  int
	fail  error
}

func (c *captureMailer) SendVerification(_ context.Context, to, _, link string) error {
	if c.fail != nil {
		return c.fail
	}
	c.links[to] = link
	c.sent++
	return nil
}

type fixture struct {
	svc      *Service
	users    *memUsers
	profiles *memProfiles
	roles    memRoles
	mailer   *captureMailer
	denied   *auth.MemoryDenyList
	bus      *realtime.Bus
	issuer   *auth.Issuer
}

func newFixture() *fixture {
	f := &fixture{
		users:    &memUsers{users: make(map[uuid.UUID]*models.User)},
		profiles: &memProfiles{},
		roles:    memRoles{},
		mailer:   &captureMailer{links: make(map[string]string)},
		denied:   auth.NewMemoryDenyList(),
		bus:      realtime.NewBus(nil, zap.NewNop()),
		issuer:   auth.NewIssuer("account-test-secret-32-bytes-long!!"),
	}
	f.svc = NewService(zap.NewNop(), f.users, f.profiles, f.roles, passthroughTx{}, f.issuer, f.denied, f.mailer, f.bus, Config{
		TokenTTL:   time.Hour,
		PublicURL:  "http://localhost:8081/",
		BcryptCost: bcrypt.MinCost,
	})
	return f
}

func (f *fixture) signUpVerified(t *testing.T, email, password string) *models.User {
	t.Helper()
	u, err := f.svc.SignUp(context.Background(), SignUpInput{Email: email, Password: password, DisplayName: "Ana"})
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(context.Background(), f.verifyToken(t, u.Email)))
	return u
}

func (f *fixture) verifyToken(t *testing.T, email string) string {
	t.Helper()
	link, ok := f.mailer.links[email]
	require.True(t, ok, "no verification mail for %s", email)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestPasswordProblem(t *testing.T) {
	assert.NotEmpty(t, PasswordProblem("short1"))
	assert.NotEmpty(t, PasswordProblem("onlyletters"))
	assert.NotEmpty(t, PasswordProblem("1234567890"))
	assert.NotEmpty(t, PasswordProblem("a1234567890123456789012345678901234567890123456789012345678901234567890123"))
	assert.Empty(t, PasswordProblem("letters4ever"))
}

func TestSignUp(t *testing.T) {
	f := newFixture()

	u, err := f.svc.SignUp(context.Background(), SignUpInput{Email: "  Ana@Example.com ", Password: "collab2024", DisplayName: " Ana "})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", u.Email)
	assert.False(t, u.EmailVerified())
	assert.NotEqual(t, "collab2024", u.PasswordHash)
	assert.Equal(t, []uuid.UUID{u.ID}, f.profiles.created)
	assert.Equal(t, []models.Role{models.RoleUser}, f.roles[u.ID])
	assert.Contains(t, f.mailer.links["ana@example.com"], "http://localhost:8081/v1/auth/verify?token=")
}

func TestSignUp_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "not-an-email", Password: "collab2024", DisplayName: "Ana"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "weak", DisplayName: "Ana"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "collab2024", DisplayName: ""})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "collab2024", DisplayName: "Ana"})
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, SignUpInput{Email: "A@example.com", Password: "collab2024", DisplayName: "Ana"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSignIn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "collab2024", DisplayName: "Ana"})
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, "a@example.com", "collab2024")
	assert.ErrorIs(t, err, models.ErrEmailNotVerified, "unverified accounts can't sign in")

	require.NoError(t, f.svc.VerifyEmail(ctx, f.verifyToken(t, "a@example.com")))

	_, err = f.svc.SignIn(ctx, "a@example.com", "wrong-password1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.SignIn(ctx, "nobody@example.com", "collab2024")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	session, err := f.svc.SignIn(ctx, " A@Example.com", "collab2024")
	require.NoError(t, err)
	claims, err := f.issuer.ParseToken(session.Token, auth.PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)
}

func TestVerifyEmail_RejectsAccessToken(t *testing.T) {
	f := newFixture()
	u := f.signUpVerified(t, "a@example.com", "collab2024")

	access, _, err := f.issuer.GenerateToken(u.ID, u.Email, auth.PurposeAccess, time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.VerifyEmail(context.Background(), access), models.ErrValidation)
	assert.ErrorIs(t, f.svc.VerifyEmail(context.Background(), "garbage"), models.ErrValidation)
}

func TestSignOut(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.signUpVerified(t, "a@example.com", "collab2024")

	session, err := f.svc.SignIn(ctx, "a@example.com", "collab2024")
	require.NoError(t, err)
	claims, err := f.issuer.ParseToken(session.Token, auth.PurposeAccess)
	require.NoError(t, err)

	sub, err := f.bus.Subscribe(claims.UserID, realtime.SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, claims))

	revoked, err := f.denied.IsRevoked(ctx, claims.TokenID())
	require.NoError(t, err)
	assert.True(t, revoked)

	_, open := <-sub.Events()
	assert.False(t, open, "sign-out closes realtime subscriptions")

	assert.ErrorIs(t, f.svc.SignOut(ctx, nil), models.ErrUnauthorized)
}

func TestResendVerification_AfterFailedMail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.mailer.fail = errors.New("smtp down")

	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "collab2024", DisplayName: "Ana"})
	require.NoError(t, err, "a mail failure doesn't fail signup")
	assert.Zero(t, f.mailer.sent)

	_, err = f.svc.SignIn(ctx, "a@example.com", "collab2024")
	require.ErrorIs(t, err, models.ErrEmailNotVerified)

	f.mailer.fail = nil
	require.NoError(t, f.svc.ResendVerification(ctx, " A@example.com "))
	assert.Equal(t, 1, f.mailer.sent)

	require.NoError(t, f.svc.VerifyEmail(ctx, f.verifyToken(t, "a@example.com")))
	_, err = f.svc.SignIn(ctx, "a@example.com", "collab2024")
	assert.NoError(t, err)
}

func TestResendVerification_SameAnswerForEveryone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "collab2024", DisplayName: "Ana"})
	require.NoError(t, err)
	f.signUpVerified(t, "b@example.com", "collab2024")
	require.Equal(t, 2, f.mailer.sent)

	assert.NoError(t, f.svc.ResendVerification(ctx, "nobody@example.com"))
	assert.NoError(t, f.svc.ResendVerification(ctx, "b@example.com"), "already verified")
	assert.NoError(t, f.svc.ResendVerification(ctx, "a@example.com"), "throttled")
	assert.Equal(t, 2, f.mailer.sent)

	now = now.Add(2 * time.Minute)
	require.NoError(t, f.svc.ResendVerification(ctx, "a@example.com"))
	assert.Equal(t, 3, f.mailer.sent)

	assert.ErrorIs(t, f.svc.ResendVerification(ctx, "  "), models.ErrValidation)
}

func TestChangePassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.signUpVerified(t, "a@example.com", "collab2024")

	session, err := f.svc.SignIn(ctx, "a@example.com", "collab2024")
	require.NoError(t, err)
	claims, err := f.issuer.ParseToken(session.Token, auth.PurposeAccess)
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, claims, "wrong-one1", "brandnew2025")
	assert.ErrorIs(t, err, models.ErrValidation)
	err = f.svc.ChangePassword(ctx, claims, "collab2024", "short")
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, f.svc.ChangePassword(ctx, claims, "collab2024", "brandnew2025"))

	revoked, err := f.denied.IsRevoked(ctx, claims.TokenID())
	require.NoError(t, err)
	assert.True(t, revoked, "the session that changed the password is signed out")

	_, err = f.svc.SignIn(ctx, "a@example.com", "collab2024")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = f.svc.SignIn(ctx, "a@example.com", "brandnew2025")
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, nil, "x", "brandnew2025"), models.ErrUnauthorized)
}

func TestHasRoleAndMe(t *testing.T) {
	f := newFixture()
	u := f.signUpVerified(t, "a@example.com", "collab2024")
	ctx := context.Background()

	ok, err := f.svc.HasRole(ctx, u.ID, models.RoleUser)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasRole(ctx, u.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	me, err := f.svc.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, me.EmailVerified())

	_, err = f.svc.Me(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSendGridMailer(t *testing.T) {
	var got sendGridRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewSendGridMailer("sg-key", "no-reply@collabspace.test")
	m.Endpoint = srv.URL

	require.NoError(t, m.SendVerification(context.Background(), "ana@example.com", "Ana", "http://x/verify?token=t"))
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "ana@example.com", got.Personalizations[0].To[0].Email)
	assert.Contains(t, got.Content[0].Value, "http://x/verify?token=t")

	assert.Error(t, NewSendGridMailer("", "x@y").SendVerification(context.Background(), "a@b", "", ""))
}

func TestSendGridMailer_Non202(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewSendGridMailer("bad", "x@y")
	m.Endpoint = srv.URL
	assert.Error(t, m.SendVerification(context.Background(), "a@b", "", ""))
}
