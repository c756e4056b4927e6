package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pulsefit/pulsefit-auth/internal/models"
	"github.com/pulsefit/pulsefit-auth/internal/security"

	log "github.com/sirupsen/logrus"
)

// Store is the credential persistence the authentication core depends on.
// Every call must be atomic; per-user serialization of OTP issuance and
// consumption is delegated to single-row updates behind this interface.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, email string) (*models.User, error)
	// StoreOTP sets the hashed passcode and its creation time, clearing
	// any live session in the same update.
	StoreOTP(ctx context.Context, id, hashedOTP string, createdAt time.Time) error
	// ConsumeOTP clears the passcode fields and records the login time in
	// one update.
	ConsumeOTP(ctx context.Context, id string, loginAt time.Time) error
	// ClearSession clears the login time and any stray passcode fields.
	ClearSession(ctx context.Context, id string) error
	AuthState(ctx context.Context, id string) (*models.UserAuthState, error)
	RoleOf(ctx context.Context, id string) (*models.Role, error)
}

// MailEnqueuer submits a mail for asynchronous delivery. Enqueue returns
// an error only for synchronous submission failures; delivery failures
// are reported out of band and never undo persisted state.
type MailEnqueuer interface {
	Enqueue(ctx context.Context, recipient, subject string, data map[string]any) error
}

// ServiceConfig carries the tunables of the authentication service.
type ServiceConfig struct {
	OTPTTL      time.Duration
	OTPLength   int
	AccessTTL   time.Duration
	Debug       bool
	ProjectName string
}

// OTPIssued is the outcome of a successful OTP request. OTP carries the
// plaintext code only in debug mode; it is never persisted.
type OTPIssued struct {
	OTP    string
	Detail string
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Username     string
	IsNewUser    bool
}

// Service drives the OTP login lifecycle: anonymous -> OTP-pending ->
// authenticated -> logged-out. All durable state lives in the Store.
type Service struct {
	store  Store
	tokens *security.TokenManager
	otp    *OTPEngine
	mail   MailEnqueuer
	cfg    ServiceConfig
	nowFn  func() time.Time
}

// NewService constructs a Service. A nil nowFn defaults to the UTC wall
// clock truncated to seconds, matching the precision of stored fields.
// mail may be nil when delivery is disabled (debug deployments).
func NewService(store Store, tokens *security.TokenManager, mail MailEnqueuer, cfg ServiceConfig, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC().Truncate(time.Second) }
	}
	return &Service{
		store:  store,
		tokens: tokens,
		otp:    NewOTPEngine(cfg.OTPTTL, cfg.OTPLength),
		mail:   mail,
		cfg:    cfg,
		nowFn:  nowFn,
	}
}

// NormalizeEmail lowercases and trims an email address; email matching is
// case-insensitive throughout.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestOTP registers or re-engages the user behind email and issues a
// one-time passcode. The passcode counts as issued once hashed and
// stored; mail delivery runs asynchronously and its failure does not
// roll the passcode back.
func (s *Service) RequestOTP(ctx context.Context, email string) (*OTPIssued, error) {
	email = NormalizeEmail(email)

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		user, err = s.store.Create(ctx, email)
	}
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	if s.cfg.Debug && s.hasLiveSession(user, now) {
		return nil, ErrAlreadyLoggedIn
	}

	code, hash, err := s.otp.Issue(user, now)
	if err != nil {
		return nil, err
	}

	if errStore := s.store.StoreOTP(ctx, user.ID, hash, now); errStore != nil {
		return nil, errStore
	}

	if !s.cfg.Debug {
		if errMail := s.sendOTPMail(ctx, user, code); errMail != nil {
			log.WithError(errMail).WithField("user_id", user.ID).Error("otp mail submission failed")
			return nil, fmt.Errorf("submit otp mail: %w", ErrMailUnavailable)
		}
	}

	issued := &OTPIssued{Detail: "OTP sent to email"}
	if s.cfg.Debug {
		issued.OTP = code
	}
	return issued, nil
}

// Login verifies a submitted passcode and opens a session, returning a
// fresh access and refresh token pair. On success the passcode fields
// are cleared and the login time recorded in one atomic update.
func (s *Service) Login(ctx context.Context, email, code string) (*LoginResult, error) {
	user, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	if s.cfg.Debug && s.hasLiveSession(user, now) {
		return nil, ErrAlreadyLoggedIn
	}

	if errVerify := s.otp.Verify(user, code, now); errVerify != nil {
		return nil, errVerify
	}

	if errConsume := s.store.ConsumeOTP(ctx, user.ID, now); errConsume != nil {
		return nil, errConsume
	}

	accessToken, err := s.tokens.CreateAccessToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.tokens.CreateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Username:     user.Username,
		// Drives post-login routing on the client; not an authorization input.
		IsNewUser: user.Age == nil,
	}, nil
}

// Refresh mints a new access token from a valid refresh token. The
// session state is untouched.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, err := s.tokens.ParseToken(refreshToken, security.TokenKindRefresh)
	if err != nil {
		return "", err
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}

	accessToken, err := s.tokens.CreateAccessToken(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return accessToken, nil
}

// Logout closes the user's session. It is idempotent; logging out an
// already logged-out user succeeds.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.store.ClearSession(ctx, userID)
}

// Authenticate resolves an access token to a user ID. Session-level
// rejections (unknown, deactivated, logged-out) all collapse into
// ErrUnauthorized so responses cannot leak account existence; only
// token-level failures keep their distinct classification.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (string, error) {
	userID, err := s.tokens.ParseToken(accessToken, security.TokenKindAccess)
	if err != nil {
		return "", err
	}

	state, err := s.store.AuthState(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUnauthorized
		}
		return "", err
	}
	if !state.Active {
		return "", ErrUnauthorized
	}
	if state.LastLoginAt == nil {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// AuthorizeRole authenticates the token and then checks the user's role
// against the allow-list, case-insensitively. Authentication failures
// keep their own classification; a role mismatch is ErrForbidden.
func (s *Service) AuthorizeRole(ctx context.Context, accessToken string, allowedRoles ...string) (string, error) {
	userID, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return "", err
	}

	role, err := s.store.RoleOf(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrForbidden
		}
		return "", err
	}
	for _, allowed := range allowedRoles {
		if strings.EqualFold(role.Name, allowed) {
			return userID, nil
		}
	}
	return "", ErrForbidden
}

// hasLiveSession reports whether the user's last login is still inside
// the access-token lifetime.
func (s *Service) hasLiveSession(user *models.User, now time.Time) bool {
	return user.LastLoginAt != nil && !now.After(user.LastLoginAt.Add(s.cfg.AccessTTL))
}

func (s *Service) sendOTPMail(ctx context.Context, user *models.User, code string) error {
	if s.mail == nil {
		return errors.New("no mailer configured")
	}
	subject := fmt.Sprintf("OTP for %s", s.cfg.ProjectName)
	data := map[string]any{
		"name":         user.Email,
		"otp":          code,
		"project_name": s.cfg.ProjectName,
	}
	return s.mail.Enqueue(ctx, user.Email, subject, data)
}
