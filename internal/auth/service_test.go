package auth_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pulsefit/pulsefit-auth/internal/auth"
	"github.com/pulsefit/pulsefit-auth/internal/db"
	"github.com/pulsefit/pulsefit-auth/internal/security"
	"github.com/pulsefit/pulsefit-auth/internal/store"
)

const (
	testOTPTTL    = 120 * time.Second
	testAccessTTL = 30 * time.Minute
)

// recordingMailer captures enqueued mails; fail makes Enqueue error.
type recordingMailer struct {
	mu   sync.Mutex
	fail bool
	sent []map[string]any
}

func (m *recordingMailer) Enqueue(_ context.Context, _ string, _ string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *recordingMailer) lastOTP(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no mail recorded")
	}
	otp, _ := m.sent[len(m.sent)-1]["otp"].(string)
	return otp
}

type testRig struct {
	svc    *auth.Service
	store  *store.UserStore
	mailer *recordingMailer
	now    time.Time
}

func newTestRig(t *testing.T, debug bool) *testRig {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "auth-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	rig := &testRig{
		store:  store.NewUserStore(conn),
		mailer: &recordingMailer{},
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return rig.now }
	tokens := security.NewTokenManager("test-secret", testAccessTTL, 24*time.Hour, clock)
	rig.svc = auth.NewService(rig.store, tokens, rig.mailer, auth.ServiceConfig{
		OTPTTL:      testOTPTTL,
		OTPLength:   4,
		AccessTTL:   testAccessTTL,
		Debug:       debug,
		ProjectName: "PulseFit",
	}, clock)
	return rig
}

func (r *testRig) advance(d time.Duration) {
	r.now = r.now.Add(d)
}

func (r *testRig) deactivate(t *testing.T, id string) {
	t.Helper()
	if err := r.store.Deactivate(context.Background(), id); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
}

func TestRequestOTP_RegistersAndIssues(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "A@X.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if len(issued.OTP) != 4 {
		t.Fatalf("expected 4-digit debug otp, got %q", issued.OTP)
	}

	// Lookup is case-insensitive; the row was stored lowercased.
	user, err := rig.store.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.HashedOTP == nil || user.OTPCreatedAt == nil {
		t.Fatalf("expected otp fields persisted")
	}
	if *user.HashedOTP == issued.OTP {
		t.Fatalf("plaintext otp must not be persisted")
	}
	if !user.OTPCreatedAt.Equal(rig.now) {
		t.Fatalf("expected otp created at %s, got %s", rig.now, user.OTPCreatedAt)
	}
}

func TestRequestOTP_BackoffInsideTTL(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	if _, err := rig.svc.RequestOTP(ctx, "a@x.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}

	rig.advance(30 * time.Second)
	_, err := rig.svc.RequestOTP(ctx, "a@x.com")
	var retry *auth.RetryError
	if !errors.As(err, &retry) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	if !errors.Is(err, auth.ErrOTPAlreadyIssued) {
		t.Fatalf("expected ErrOTPAlreadyIssued match, got %v", err)
	}
	if retry.RetrySeconds() != 90 {
		t.Fatalf("expected retry in 90s, got %d", retry.RetrySeconds())
	}
}

func TestRequestOTP_ReissuesAfterExpiry(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	first, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	rig.advance(testOTPTTL + time.Second)
	second, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("second request after expiry: %v", err)
	}
	if len(second.OTP) != 4 {
		t.Fatalf("expected a fresh otp, got %q", second.OTP)
	}

	// The old code no longer works once a new one is hashed over it.
	if first.OTP != second.OTP {
		if _, err := rig.svc.Login(ctx, "a@x.com", first.OTP); !errors.Is(err, auth.ErrOTPIncorrect) {
			t.Fatalf("expected superseded code rejected, got %v", err)
		}
	}
}

func TestLogin_FullLifecycle(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}

	rig.advance(testOTPTTL - time.Second)
	result, err := rig.svc.Login(ctx, "a@x.com", issued.OTP)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.IsNewUser {
		t.Fatalf("expected isNewUser for profile-less account")
	}
	if result.Username != "a" {
		t.Fatalf("expected username=a, got %q", result.Username)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected both tokens issued")
	}

	user, err := rig.store.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if user.HashedOTP != nil || user.OTPCreatedAt != nil {
		t.Fatalf("expected otp consumed")
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login recorded")
	}

	// Consumption is one-shot: replaying the code finds no outstanding OTP.
	if _, err := rig.svc.Login(ctx, "a@x.com", issued.OTP); !errors.Is(err, auth.ErrOTPNotRequested) {
		t.Fatalf("expected ErrOTPNotRequested on replay, got %v", err)
	}

	// The fresh access token authenticates.
	userID, err := rig.svc.Authenticate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("expected subject %q, got %q", user.ID, userID)
	}
}

func TestLogin_WrongCodeInsideTTL(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	wrong := "1111"
	if wrong == issued.OTP {
		wrong = "2222"
	}

	if _, err := rig.svc.Login(ctx, "a@x.com", wrong); !errors.Is(err, auth.ErrOTPIncorrect) {
		t.Fatalf("expected ErrOTPIncorrect, got %v", err)
	}
}

func TestLogin_ExpiredCode(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}

	// Correct code, one second past the TTL: expired wins over success.
	rig.advance(testOTPTTL + time.Second)
	if _, err := rig.svc.Login(ctx, "a@x.com", issued.OTP); !errors.Is(err, auth.ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired for late correct code, got %v", err)
	}

	// Wrong code past the TTL is expired too.
	wrong := "1111"
	if wrong == issued.OTP {
		wrong = "2222"
	}
	if _, err := rig.svc.Login(ctx, "a@x.com", wrong); !errors.Is(err, auth.ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired for late wrong code, got %v", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	rig := newTestRig(t, true)

	_, err := rig.svc.Login(context.Background(), "ghost@x.com", "1234")
	if !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRequestOTP_AlreadyLoggedInDebug(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if _, err := rig.svc.Login(ctx, "a@x.com", issued.OTP); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := rig.svc.RequestOTP(ctx, "a@x.com"); !errors.Is(err, auth.ErrAlreadyLoggedIn) {
		t.Fatalf("expected ErrAlreadyLoggedIn, got %v", err)
	}

	// Once the access-token window has passed a new OTP can be requested,
	// and issuance drops the stale session.
	rig.advance(testAccessTTL + time.Second)
	if _, err := rig.svc.RequestOTP(ctx, "a@x.com"); err != nil {
		t.Fatalf("request after session expiry: %v", err)
	}
	user, err := rig.store.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if user.LastLoginAt != nil {
		t.Fatalf("expected issuance to clear last login")
	}
}

func TestRequestOTP_MailFailureKeepsOTP(t *testing.T) {
	rig := newTestRig(t, false)
	rig.mailer.fail = true
	ctx := context.Background()

	_, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if !errors.Is(err, auth.ErrMailUnavailable) {
		t.Fatalf("expected ErrMailUnavailable, got %v", err)
	}

	// The passcode counts as issued once hashed and stored; delivery
	// failure does not roll it back.
	user, err := rig.store.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if user.HashedOTP == nil || user.OTPCreatedAt == nil {
		t.Fatalf("expected otp persisted despite mail failure")
	}
}

func TestRequestOTP_DeliversMail(t *testing.T) {
	rig := newTestRig(t, false)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if issued.OTP != "" {
		t.Fatalf("plaintext otp must not be returned outside debug mode")
	}
	if otp := rig.mailer.lastOTP(t); len(otp) != 4 {
		t.Fatalf("expected otp in mail data, got %q", otp)
	}
}

func TestLogout_InvalidatesUnexpiredToken(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	result, err := rig.svc.Login(ctx, "a@x.com", issued.OTP)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	userID, err := rig.svc.Authenticate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("authenticate before logout: %v", err)
	}
	if errLogout := rig.svc.Logout(ctx, userID); errLogout != nil {
		t.Fatalf("logout: %v", errLogout)
	}

	// The token itself has not expired; the session state drives the
	// rejection.
	if _, err := rig.svc.Authenticate(ctx, result.AccessToken); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}

	// Logout is idempotent.
	if errLogout := rig.svc.Logout(ctx, userID); errLogout != nil {
		t.Fatalf("second logout: %v", errLogout)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	result, err := rig.svc.Login(ctx, "a@x.com", issued.OTP)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := rig.svc.Refresh(ctx, result.AccessToken); !errors.Is(err, security.ErrTokenWrongKind) {
		t.Fatalf("expected ErrTokenWrongKind, got %v", err)
	}

	access, err := rig.svc.Refresh(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access == "" {
		t.Fatalf("expected new access token")
	}

	// Refresh leaves the session state untouched.
	user, err := rig.store.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected session still open after refresh")
	}
}

func TestAuthorizeRole(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	result, err := rig.svc.Login(ctx, "a@x.com", issued.OTP)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Members pass member-gated checks.
	if _, err := rig.svc.AuthorizeRole(ctx, result.AccessToken, "member"); err != nil {
		t.Fatalf("expected member role to pass, got %v", err)
	}
	// Matching is case-insensitive.
	if _, err := rig.svc.AuthorizeRole(ctx, result.AccessToken, "Member"); err != nil {
		t.Fatalf("expected case-insensitive match, got %v", err)
	}

	// A member hitting an admin-gated check is forbidden, not unauthorized.
	if _, err := rig.svc.AuthorizeRole(ctx, result.AccessToken, "admin"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Unauthenticated callers fail before any role lookup.
	if _, err := rig.svc.AuthorizeRole(ctx, "", "admin"); !errors.Is(err, security.ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
}

func TestAuthenticate_DeactivatedUser(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	issued, err := rig.svc.RequestOTP(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	result, err := rig.svc.Login(ctx, "a@x.com", issued.OTP)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	userID, err := rig.svc.Authenticate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	// Deactivation is administrative; the guard must treat the user as gone.
	rig.deactivate(t, userID)
	if _, err := rig.svc.Authenticate(ctx, result.AccessToken); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for deactivated user, got %v", err)
	}
}
