package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/auth"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/observ"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type userRepo interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

type profileRepo interface {
	Create(ctx context.Context, p *models.Profile) (*models.Profile, error)
}

type roleRepo interface {
	Grant(ctx context.Context, userID uuid.UUID, role models.Role) error
	HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type tokenIssuer interface {
	GenerateToken(userID uuid.UUID, email string, purpose auth.Purpose, ttl time.Duration) (string, *auth.Claims, error)
	ParseToken(token string, want auth.Purpose) (*auth.Claims, error)
}

// sessionCloser ends a user's live realtime subscriptions.
type sessionCloser interface {
	CloseUser(userID uuid.UUID)
}

// Mailer delivers account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, link string) error
}

type Config struct {
	TokenTTL   time.Duration
	VerifyTTL  time.Duration
	PublicURL  string
	BcryptCost int

	// ResendInterval is the minimum gap between verification mails to one
	// user.
	ResendInterval time.Duration
}

const (
	minPasswordLen    = 8
	maxPasswordLen    = 72 // bcrypt ignores bytes past 72
	maxDisplayNameLen = 100
)

type Service struct {
	log      *zap.Logger
	users    userRepo
	profiles profileRepo
	roles    roleRepo
	tx       txManager
	tokens   tokenIssuer
	denied   auth.DenyList
	mailer   Mailer
	sessions sessionCloser
	cfg      Config

	now func() time.Time

	dummyOnce sync.Once
	dummyHash []byte

	mu       sync.Mutex
	lastSent map[uuid.UUID]time.Time
}

func NewService(
	logger *zap.Logger,
	users userRepo,
	profiles profileRepo,
	roles roleRepo,
	tx txManager,
	tokens tokenIssuer,
	denied auth.DenyList,
	mailer Mailer,
	sessions sessionCloser,
	cfg Config,
) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.VerifyTTL == 0 {
		cfg.VerifyTTL = 48 * time.Hour
	}
	if cfg.ResendInterval == 0 {
		cfg.ResendInterval = time.Minute
	}
	return &Service{
		log:      observ.Component(logger, "account"),
		users:    users,
		profiles: profiles,
		roles:    roles,
		tx:       tx,
		tokens:   tokens,
		denied:   denied,
		mailer:   mailer,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		lastSent: make(map[uuid.UUID]time.Time),
	}
}

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp creates the user, their public profile and the default role in one
// transaction, then mails a verification link.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	var v models.Validator
	_, emailErr := mail.ParseAddress(in.Email)
	v.Check(in.Email != "" && emailErr == nil, "email", "must be a valid email address")
	nameLen := utf8.RuneCountInString(in.DisplayName)
	v.Check(nameLen >= 1 && nameLen <= maxDisplayNameLen, "display_name", fmt.Sprintf("must be 1-%d characters", maxDisplayNameLen))
	if msg := PasswordProblem(in.Password); msg != "" {
		v.Check(false, "password", msg)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", models.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user *models.User
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.users.Create(ctx, in.Email, in.DisplayName, string(hash))
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if _, err := s.profiles.Create(ctx, &models.Profile{
			UserID:      u.ID,
			DisplayName: in.DisplayName,
			Visibility:  models.VisibilityPublic,
		}); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		if err := s.roles.Grant(ctx, u.ID, models.RoleUser); err != nil {
			return fmt.Errorf("grant role: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendVerification(ctx, user)
	s.log.Info("user signed up", zap.String("user_id", user.ID.String()))
	return user, nil
}

// PasswordProblem returns "" for an acceptable password, or what is wrong.
func PasswordProblem(pw string) string {
	if len(pw) < minPasswordLen {
		return fmt.Sprintf("must be at least %d characters", minPasswordLen)
	}
	if len(pw) > maxPasswordLen {
		return fmt.Sprintf("must be at most %d bytes", maxPasswordLen)
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return "must contain at least one letter and one digit"
	}
	return ""
}

// sendVerification mails a fresh link. Failures are logged; the user can ask
// for another one through ResendVerification.
func (s *Service) sendVerification(ctx context.Context, user *models.User) {
	token, _, err := s.tokens.GenerateToken(user.ID, user.Email, auth.PurposeVerifyEmail, s.cfg.VerifyTTL)
	if err != nil {
		s.log.Error("verification token failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	link := strings.TrimRight(s.cfg.PublicURL, "/") + "/v1/auth/verify?token=" + token
	if err := s.mailer.SendVerification(ctx, user.Email, user.DisplayName, link); err != nil {
		s.log.Error("verification email failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.lastSent[user.ID] = s.now()
	s.mu.Unlock()
}

// ResendVerification mails a new link to an unverified account. Unknown,
// verified and throttled addresses all get nil.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.NewValidationError("email", "is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.EmailVerified() {
		return nil
	}

	s.mu.Lock()
	last, ok := s.lastSent[user.ID]
	s.mu.Unlock()
	if ok && s.now().Sub(last) < s.cfg.ResendInterval {
		s.log.Debug("verification resend throttled", zap.String("user_id", user.ID.String()))
		return nil
	}

	s.sendVerification(ctx, user)
	return nil
}

// VerifyEmail consumes a verification token. Verifying twice is harmless.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.tokens.ParseToken(token, auth.PurposeVerifyEmail)
	if err != nil {
		return models.NewValidationError("token", "invalid or expired verification token")
	}
	if err := s.users.MarkEmailVerified(ctx, claims.UserID); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// SignIn checks credentials and issues an access token. Unknown email and
// wrong password give the same error, and cost the same bcrypt work.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !user.EmailVerified() {
		return nil, models.ErrEmailNotVerified
	}

	token, claims, err := s.tokens.GenerateToken(user.ID, user.Email, auth.PurposeAccess, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: claims.Expiry(), User: user}, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password-1"), s.cfg.BcryptCost)
	})
	return s.dummyHash
}

// SignOut revokes the token until it would have expired and tears down the
// user's realtime subscriptions on this instance.
func (s *Service) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return models.ErrUnauthorized
	}
	if err := s.denied.Revoke(ctx, claims.TokenID(), claims.Expiry()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.sessions.CloseUser(claims.UserID)
	return nil
}

// ChangePassword replaces the password after checking the current one, then
// signs the caller out.
func (s *Service) ChangePassword(ctx context.Context, claims *auth.Claims, current, next string) error {
	if claims == nil {
		return models.ErrUnauthorized
	}
	if msg := PasswordProblem(next); msg != "" {
		return models.NewValidationError("new_password", msg)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return models.ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return models.NewValidationError("current_password", "is incorrect")
		}
		return fmt.Errorf("compare password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.log.Info("password changed", zap.String("user_id", user.ID.String()))
	return s.SignOut(ctx, claims)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (s *Service) HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error) {
	return s.roles.HasRole(ctx, userID, role)
}
