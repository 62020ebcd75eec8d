package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/platform/auth"
)

// AuditLogger records security events.
type AuditLogger interface {
	Log(ctx context.Context, e audit.Entry)
}

type Service struct {
	users      UserRepository
	sessions   SessionRepository
	tokens     *auth.TokenIssuer
	audit      AuditLogger
	sessionTTL time.Duration
	logger     zerolog.Logger
	nowFn      func() time.Time
}

func NewService(users UserRepository, sessions SessionRepository, tokens *auth.TokenIssuer, sessionTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		logger:     logger.With().Str("component", "account").Logger(),
		nowFn:      time.Now,
	}
}

// SetAuditLogger wires the audit trail. The audit service itself depends on
// this service for username lookups, so it is attached after construction.
func (s *Service) SetAuditLogger(a AuditLogger) {
	s.audit = a
}

func (s *Service) record(ctx context.Context, userID *int64, action, status, description string) {
	s.recordResource(ctx, userID, action, "auth", status, description)
}

func (s *Service) recordResource(ctx context.Context, userID *int64, action, resource, status, description string) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, audit.Entry{
		UserID:      userID,
		Action:      action,
		Resource:    resource,
		Status:      status,
		Description: description,
	})
}

// CreateUser adds an account after checking the role and password policy.
func (s *Service) CreateUser(ctx context.Context, username, fullName, role, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if !auth.ValidRole(role) {
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{Username: username, FullName: fullName, Role: role, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %q: %w", username, err)
	}
	return u, nil
}

// Login checks credentials and opens a session. Five consecutive failures
// lock the account for LockoutDuration.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		s.record(ctx, nil, audit.ActionLogin, audit.StatusFailed, "missing credentials")
		return nil, ErrMissingCredentials
	}

	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		s.record(ctx, nil, audit.ActionLogin, audit.StatusFailed, "unknown user")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	now := s.nowFn()
	uid := u.ID
	if u.Locked(now) {
		s.record(ctx, &uid, audit.ActionLogin, audit.StatusFailed, "account locked")
		return nil, ErrAccountLocked
	}

	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		u.FailedLogins++
		if u.FailedLogins >= MaxFailedLogins {
			until := now.Add(LockoutDuration)
			u.LockedUntil = &until
			s.logger.Warn().Str("username", u.Username).Time("locked_until", until).Msg("account locked")
		}
		if err := s.users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		s.record(ctx, &uid, audit.ActionLogin, audit.StatusFailed, "invalid password")
		return nil, ErrInvalidCredentials
	}

	u.FailedLogins = 0
	u.LockedUntil = nil
	last := now.UTC()
	u.LastLogin = &last
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	token, sid, err := s.tokens.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, &Session{ID: sid, UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(s.sessionTTL)}); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.record(ctx, &uid, audit.ActionLogin, audit.StatusSuccess, "")
	s.logger.Info().Str("username", u.Username).Str("role", u.Role).Msg("login")
	return &LoginResult{
		Profile:   Profile{UserID: u.ID, Username: u.Username, Role: u.Role},
		SessionID: token,
	}, nil
}

// ValidateSession reports whether the session is live and, if so, extends
// it by the session TTL. Expired sessions are removed.
func (s *Service) ValidateSession(sessionID string) (auth.Principal, bool) {
	ctx := context.Background()
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return auth.Principal{}, false
	}
	now := s.nowFn()
	if !sess.ExpiresAt.After(now) {
		_ = s.sessions.Delete(ctx, sessionID)
		return auth.Principal{}, false
	}
	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return auth.Principal{}, false
	}
	sess.ExpiresAt = now.Add(s.sessionTTL)
	if err := s.sessions.Update(ctx, sess); err != nil {
		s.logger.Warn().Err(err).Msg("failed to extend session")
	}
	return auth.Principal{UserID: u.ID, Username: u.Username, Role: u.Role, SessionID: sess.ID}, true
}

// Me returns the profile of the authenticated caller.
func (s *Service) Me(ctx context.Context) (*Profile, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrNotFound
	}
	uid := p.UserID
	s.record(ctx, &uid, audit.ActionMe, audit.StatusSuccess, "")
	return &Profile{UserID: p.UserID, Username: p.Username, Role: p.Role}, nil
}

// Logout ends the caller's session when ok is set. It never fails; a
// caller without a live session is already logged out.
func (s *Service) Logout(ctx context.Context, p auth.Principal, ok bool) {
	if !ok {
		s.record(ctx, nil, audit.ActionLogout, audit.StatusFailed, "no active session")
		return
	}
	if err := s.sessions.Delete(ctx, p.SessionID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to delete session")
	}
	uid := p.UserID
	s.record(ctx, &uid, audit.ActionLogout, audit.StatusSuccess, "")
}

// Username implements audit.UserDirectory.
func (s *Service) Username(ctx context.Context, id int64) (string, bool) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", false
	}
	return u.Username, true
}

// DisplayName returns the full name of a user, falling back to the username.
func (s *Service) DisplayName(ctx context.Context, id int64) (string, bool) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", false
	}
	return u.DisplayName(), true
}

// ActiveSessions implements audit.SessionCounter.
func (s *Service) ActiveSessions(ctx context.Context) int {
	n, err := s.sessions.CountActive(ctx, s.nowFn())
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to count sessions")
	}
	return n
}

// -- User administration --

// ListUsers returns every account ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	now := s.nowFn()
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary(now))
	}
	s.recordResource(ctx, nil, audit.ActionUsersList, "users", audit.StatusSuccess, fmt.Sprintf("Listed %d users", len(out)))
	return out, nil
}

// Unlock clears the failure counter and any lockout.
func (s *Service) Unlock(ctx context.Context, id int64) (*UserSummary, error) {
	resource := userResource(id)
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.recordResource(ctx, nil, audit.ActionUserUnlock, resource, audit.StatusFailed, "user not found")
		return nil, err
	}
	u.FailedLogins = 0
	u.LockedUntil = nil
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info().Str("username", u.Username).Msg("account unlocked")
	s.recordResource(ctx, nil, audit.ActionUserUnlock, resource, audit.StatusSuccess, fmt.Sprintf("Unlocked %s", u.Username))
	sum := u.Summary(s.nowFn())
	return &sum, nil
}

// ResetPassword sets a new password after checking the password policy and
// unlocks the account. The policy is checked before the user is looked up.
func (s *Service) ResetPassword(ctx context.Context, id int64, newPassword string) error {
	resource := userResource(id)
	if err := auth.ValidatePassword(newPassword); err != nil {
		s.recordResource(ctx, nil, audit.ActionUserResetPass, resource, audit.StatusFailed, "password rejected by policy")
		return err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.recordResource(ctx, nil, audit.ActionUserResetPass, resource, audit.StatusFailed, "user not found")
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.FailedLogins = 0
	u.LockedUntil = nil
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	s.logger.Info().Str("username", u.Username).Msg("password reset")
	s.recordResource(ctx, nil, audit.ActionUserResetPass, resource, audit.StatusSuccess, fmt.Sprintf("Reset password for %s", u.Username))
	return nil
}

func userResource(id int64) string {
	return fmt.Sprintf("user/%d", id)
}
