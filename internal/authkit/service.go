package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TokenPair is the credential bundle returned by login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthService orchestrates login, refresh rotation, and revocation.
//
// Refresh tokens are one-time-use: every successful refresh revokes the prior
// session and issues a new one, so a leaked token stops working the moment the
// legitimate client rotates.
type AuthService struct {
	configuration ServerConfig
	users         UserStore
	sessions      SessionStore
	clock         Clock
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// NewAuthService wires the service. Logger and metrics may be nil.
func NewAuthService(configuration ServerConfig, users UserStore, sessions SessionStore, clock Clock, logger *zap.Logger, metrics MetricsRecorder) *AuthService {
	if users == nil || sessions == nil {
		panic("auth service requires user and session stores")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AuthService{
		configuration: configuration,
		users:         users,
		sessions:      sessions,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

// RegisterInput is the payload accepted by Register.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
	Role     Role
}

const minPasswordLength = 8

// ErrValidation reports Register payload problems to the HTTP layer.
var ErrValidation = errors.New("auth.validation")

// Register creates a marketplace account. Only STUDENT and TUTOR may
// self-register; admin accounts are provisioned out of band.
func (service *AuthService) Register(ctx context.Context, input RegisterInput) (User, error) {
	fullName := strings.TrimSpace(input.FullName)
	email := normalizeEmail(input.Email)
	if fullName == "" || email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: full name and a valid email are required", ErrValidation)
	}
	if len(input.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	if input.Role != RoleStudent && input.Role != RoleTutor {
		return User{}, fmt.Errorf("%w: role must be STUDENT or TUTOR", ErrValidation)
	}

	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if hashErr != nil {
		return User{}, fmt.Errorf("auth.register.hash: %w", hashErr)
	}
	created, createErr := service.users.CreateUser(ctx, User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         input.Role,
		Active:       true,
	})
	if createErr != nil {
		return User{}, createErr
	}
	service.metrics.Increment(MetricRegisterSuccess)
	service.logger.Info("user registered",
		zap.String("code", "auth.register.success"),
		zap.String("user_id", created.ID),
		zap.String("role", string(created.Role)))
	return created, nil
}

// isSessionMiss reports whether a store error is one of the expected misses
// (unknown, revoked, expired, empty token) rather than an infrastructure
// failure. Only misses translate into ErrInvalidSession for the caller.
func isSessionMiss(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionEmptyOpaque)
}

// Login verifies credentials and issues a fresh token pair. Unknown email and
// wrong password fail with the same error, so the endpoint is not a
// user-existence oracle.
func (service *AuthService) Login(ctx context.Context, email string, password string, deviceFingerprint string) (TokenPair, error) {
	user, lookupErr := service.users.FindUserByEmail(ctx, normalizeEmail(email))
	if lookupErr != nil && !errors.Is(lookupErr, ErrUserNotFound) {
		return TokenPair{}, fmt.Errorf("auth.login.store: %w", lookupErr)
	}
	if lookupErr != nil {
		// Burn a bcrypt comparison anyway so response timing does not
		// separate unknown emails from wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B1JtM0wZ8do8ik6o1mZVxGmVuVSW"), []byte(password))
		service.metrics.Increment(MetricLoginFailure)
		service.logger.Warn("login rejected",
			zap.String("code", "auth.login.unknown_email"),
			zap.Error(lookupErr))
		return TokenPair{}, fmt.Errorf("auth.login: %w", ErrInvalidCredentials)
	}
	if compareErr := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); compareErr != nil {
		service.metrics.Increment(MetricLoginFailure)
		service.logger.Warn("login rejected",
			zap.String("code", "auth.login.password_mismatch"),
			zap.String("user_id", user.ID))
		return TokenPair{}, fmt.Errorf("auth.login: %w", ErrInvalidCredentials)
	}
	if !user.Active {
		service.metrics.Increment(MetricLoginFailure)
		service.logger.Warn("login rejected",
			zap.String("code", "auth.login.account_inactive"),
			zap.String("user_id", user.ID))
		return TokenPair{}, fmt.Errorf("auth.login: %w", ErrAccountInactive)
	}

	pair, issueErr := service.issuePair(ctx, user, deviceFingerprint, "")
	if issueErr != nil {
		return TokenPair{}, issueErr
	}
	service.metrics.Increment(MetricLoginSuccess)
	service.logger.Info("login succeeded",
		zap.String("code", "auth.login.success"),
		zap.String("user_id", user.ID))
	return pair, nil
}

// Refresh rotates a refresh session and issues a new token pair. The old
// session is revoked once the replacement exists, so a crash between the two
// steps leaves the user with at least one usable token.
func (service *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	session, findErr := service.sessions.FindActiveSession(ctx, refreshToken)
	if findErr != nil {
		if !isSessionMiss(findErr) {
			return TokenPair{}, fmt.Errorf("auth.refresh.store: %w", findErr)
		}
		service.metrics.Increment(MetricRefreshFailure)
		service.logger.Warn("refresh rejected",
			zap.String("code", "auth.refresh.invalid_session"),
			zap.Error(findErr))
		return TokenPair{}, fmt.Errorf("auth.refresh: %w", ErrInvalidSession)
	}
	user, lookupErr := service.users.FindUserByID(ctx, session.UserID)
	if lookupErr != nil && !errors.Is(lookupErr, ErrUserNotFound) {
		return TokenPair{}, fmt.Errorf("auth.refresh.store: %w", lookupErr)
	}
	if lookupErr != nil || !user.Active {
		service.metrics.Increment(MetricRefreshFailure)
		service.logger.Warn("refresh rejected",
			zap.String("code", "auth.refresh.user_unavailable"),
			zap.String("user_id", session.UserID))
		return TokenPair{}, fmt.Errorf("auth.refresh: %w", ErrInvalidSession)
	}

	pair, issueErr := service.issuePair(ctx, user, session.DeviceFingerprint, session.SessionID)
	if issueErr != nil {
		return TokenPair{}, issueErr
	}
	if revokeErr := service.sessions.RevokeSession(ctx, session.SessionID); revokeErr != nil {
		return TokenPair{}, fmt.Errorf("auth.refresh.revoke_previous: %w", revokeErr)
	}
	service.metrics.Increment(MetricRefreshSuccess)
	service.logger.Info("refresh rotated",
		zap.String("code", "auth.refresh.success"),
		zap.String("user_id", user.ID),
		zap.String("previous_session_id", session.SessionID))
	return pair, nil
}

// Logout revokes the session behind the refresh token. It never returns a
// user-visible failure: a stale, unknown, or empty token is a no-op.
func (service *AuthService) Logout(ctx context.Context, refreshToken string) {
	session, findErr := service.sessions.FindActiveSession(ctx, refreshToken)
	if findErr != nil {
		if !isSessionMiss(findErr) {
			service.logger.Error("logout store failure",
				zap.String("code", "auth.logout.store_error"),
				zap.Error(findErr))
			return
		}
		service.logger.Debug("logout no-op",
			zap.String("code", "auth.logout.no_session"),
			zap.Error(findErr))
		return
	}
	if revokeErr := service.sessions.RevokeSession(ctx, session.SessionID); revokeErr != nil {
		service.logger.Error("logout revoke failed",
			zap.String("code", "auth.logout.revoke_error"),
			zap.String("session_id", session.SessionID),
			zap.Error(revokeErr))
		return
	}
	service.metrics.Increment(MetricLogout)
}

// LogoutAll revokes every non-revoked session the user holds. Idempotent.
func (service *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := service.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("auth.logout_all: %w", err)
	}
	service.metrics.Increment(MetricLogoutAll)
	service.logger.Info("all sessions revoked",
		zap.String("code", "auth.logout_all.success"),
		zap.String("user_id", userID))
	return nil
}

func (service *AuthService) issuePair(ctx context.Context, user User, deviceFingerprint string, previousSessionID string) (TokenPair, error) {
	identity := Identity{ID: user.ID, Email: user.Email, Role: user.Role}
	accessToken, expiresAt, mintErr := MintAccessToken(service.clock, identity, service.configuration.AccessIssuer, service.configuration.AccessSigningKey, service.configuration.AccessTTL)
	if mintErr != nil {
		return TokenPair{}, mintErr
	}
	refreshExpiry := service.clock.Now().Add(service.configuration.RefreshTTL)
	_, refreshOpaque, createErr := service.sessions.CreateSession(ctx, user.ID, refreshExpiry, deviceFingerprint, previousSessionID)
	if createErr != nil {
		return TokenPair{}, fmt.Errorf("auth.issue.session: %w", createErr)
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		ExpiresAt:    expiresAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
