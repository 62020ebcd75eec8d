package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/platform/auth"
	"github.com/ehr/mhemr/internal/platform/middleware"
)

// UserDirectory resolves user ids to display names.
type UserDirectory interface {
	Username(ctx context.Context, id int64) (string, bool)
}

// SessionCounter reports how many sessions are currently live.
type SessionCounter interface {
	ActiveSessions(ctx context.Context) int
}

type Service struct {
	repo     Repository
	users    UserDirectory
	sessions SessionCounter
	logger   zerolog.Logger
	nowFn    func() time.Time
}

func NewService(repo Repository, users UserDirectory, sessions SessionCounter, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		sessions: sessions,
		logger:   logger.With().Str("component", "audit").Logger(),
		nowFn:    time.Now,
	}
}

// Log records e. The caller's user id and address are taken from ctx when
// e does not set them. Failures are logged, never returned: an audit
// write must not fail the request it describes.
func (s *Service) Log(ctx context.Context, e Entry) {
	if e.UserID == nil {
		if p, ok := auth.PrincipalFromContext(ctx); ok {
			uid := p.UserID
			e.UserID = &uid
		}
	}
	if e.IPAddress == "" {
		e.IPAddress = middleware.ClientIPFromContext(ctx)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.nowFn().UTC()
	}
	if err := s.repo.Create(ctx, &e); err != nil {
		s.logger.Error().Err(err).Str("action", e.Action).Msg("failed to record audit entry")
	}
}

// Success and Failure are shorthands for Log.
func (s *Service) Success(ctx context.Context, action, resource, description string) {
	s.Log(ctx, Entry{Action: action, Resource: resource, Status: StatusSuccess, Description: description})
}

func (s *Service) Failure(ctx context.Context, action, resource, description string) {
	s.Log(ctx, Entry{Action: action, Resource: resource, Status: StatusFailed, Description: description})
}

// RecordAccess adapts denied-access entries from the HTTP middleware.
func (s *Service) RecordAccess(me middleware.AuditEntry) error {
	e := Entry{
		Timestamp: me.Timestamp,
		Action:    me.Action,
		Resource:  me.Resource,
		IPAddress: me.IPAddress,
		Status:    me.Status,
	}
	if me.UserID != 0 {
		uid := me.UserID
		e.UserID = &uid
	}
	return s.repo.Create(context.Background(), &e)
}

// List returns the matching entries newest first with usernames resolved.
func (s *Service) List(ctx context.Context, q Query) ([]*Entry, int, error) {
	f, err := q.Filter()
	if err != nil {
		return nil, 0, err
	}
	entries, total, err := s.repo.Search(ctx, f, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit log: %w", err)
	}
	for _, e := range entries {
		if e.UserID == nil || s.users == nil {
			continue
		}
		if name, ok := s.users.Username(ctx, *e.UserID); ok {
			e.Username = &name
		}
	}
	return entries, total, nil
}

// Stats counts today's (UTC) logins and access failures.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.nowFn().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today := func(action, status string) (int, error) {
		return s.repo.Count(ctx, Filter{Action: action, Status: status, From: start, To: start.AddDate(0, 0, 1)})
	}

	var st Stats
	var err error
	if st.TotalLoginsToday, err = today(ActionLogin, StatusSuccess); err != nil {
		return nil, err
	}
	if st.FailedAttemptsToday, err = today(ActionLogin, StatusFailed); err != nil {
		return nil, err
	}
	if st.UnauthorizedAttemptsToday, err = today(ActionAccess403, StatusFailed); err != nil {
		return nil, err
	}
	if st.NotAuthenticatedToday, err = today(ActionAccess401, StatusFailed); err != nil {
		return nil, err
	}
	if s.sessions != nil {
		st.ActiveSessions = s.sessions.ActiveSessions(ctx)
	}
	return &st, nil
}
