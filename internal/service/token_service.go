package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/internal/repository"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
	"github.com/noah-isme/attendify-api/pkg/tokens"
)

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = 5 * time.Minute

type tokenRepository interface {
	FindActiveBySession(ctx context.Context, sessionID string) (*models.SessionToken, error)
	FindActiveByDigest(ctx context.Context, sessionID, digest string) (*models.SessionToken, error)
	ExistsForSession(ctx context.Context, sessionID string) (bool, error)
	Insert(ctx context.Context, token *models.SessionToken) error
	Deactivate(ctx context.Context, id string) (bool, error)
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionLocker interface {
	FindByIDForUpdate(ctx context.Context, id string) (*models.ClassSession, error)
}

// TokenService is the ledger of rotating session tokens. At most one token
// per session is active, and expiry once observed is never reversed.
type TokenService struct {
	repo      tokenRepository
	sessions  sessionLocker
	tx        txRunner
	clock     *SessionClock
	ttl       time.Duration
	metrics   *MetricsService
	audit     auditRecorder
	logger    *zap.Logger
	newSecret func() (string, error)
}

// NewTokenService constructs the token ledger.
func NewTokenService(repo tokenRepository, sessions sessionLocker, tx txRunner, sessionClock *SessionClock, ttl time.Duration, metrics *MetricsService, audit auditRecorder, logger *zap.Logger) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		repo:      repo,
		sessions:  sessions,
		tx:        tx,
		clock:     sessionClock,
		ttl:       ttl,
		metrics:   metrics,
		audit:     audit,
		logger:    logger,
		newSecret: tokens.NewSecret,
	}
}

// IssueToken creates the active token for an ongoing session owned by the
// caller. The session row stays locked until the token is stored so two
// concurrent issuers cannot both succeed.
func (s *TokenService) IssueToken(ctx context.Context, principal models.Principal, sessionID string) (*models.IssuedToken, error) {
	if !principal.IsLecturer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers can generate QR codes")
	}

	var issued *models.IssuedToken
	var session *models.ClassSession
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		session, err = lockSession(ctx, s.sessions, sessionID)
		if err != nil {
			return err
		}
		if session.OwnerID != principal.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "you can only generate QR codes for your own classes")
		}

		now := s.clock.Now()
		if !s.clock.CanIssueTokenAt(session, now) {
			return appErrors.ErrSessionNotOngoing
		}

		current, err := s.repo.FindActiveBySession(ctx, session.ID)
		switch {
		case err == nil && !current.Expired(now):
			return appErrors.ErrTokenAlreadyActive
		case err == nil:
			if _, err := s.repo.Deactivate(ctx, current.ID); err != nil {
				return err
			}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		secret, err := s.newSecret()
		if err != nil {
			return fmt.Errorf("generate token secret: %w", err)
		}
		token := &models.SessionToken{
			SessionID:    session.ID,
			SecretDigest: tokens.Digest(secret),
			IssuedAt:     now,
			ExpiresAt:    now.Add(s.ttl),
		}
		if err := s.repo.Insert(ctx, token); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.ErrTokenAlreadyActive
			}
			return err
		}

		issued = &models.IssuedToken{
			TokenID:   token.ID,
			SessionID: session.ID,
			Secret:    secret,
			IssuedAt:  token.IssuedAt,
			ExpiresAt: token.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, passThrough(s.logger, "issue session token failed", err, zap.String("session_id", sessionID))
	}

	s.metrics.RecordTokenIssued()
	record(s.audit, ctx, models.AuditEvent{
		ActorID:     principal.ID,
		Action:      models.AuditActionCreate,
		Description: fmt.Sprintf("QR code generated for session %s", session.ID),
		Metadata:    map[string]interface{}{"session_id": session.ID, "token_id": issued.TokenID, "expires_at": issued.ExpiresAt},
		OccurredAt:  issued.IssuedAt,
	})
	return issued, nil
}

// Validate checks a presented secret against the session at the current instant.
func (s *TokenService) Validate(ctx context.Context, secret string, session *models.ClassSession) (*models.SessionToken, error) {
	return s.ValidateAt(ctx, secret, session, s.clock.Now())
}

// ValidateAt checks a presented secret against the session at now. It does
// not consume the token. An expired token is switched off before
// ErrTokenExpired is returned.
func (s *TokenService) ValidateAt(ctx context.Context, secret string, session *models.ClassSession, now time.Time) (*models.SessionToken, error) {
	if session == nil || !tokens.WellFormed(secret) {
		return nil, appErrors.ErrTokenNotFound
	}

	token, err := s.repo.FindActiveByDigest(ctx, session.ID, tokens.Digest(secret))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrTokenNotFound
		}
		return nil, storageFailure(s.logger, "lookup session token failed", err, zap.String("session_id", session.ID))
	}

	if token.Expired(now) {
		if _, err := s.repo.Deactivate(ctx, token.ID); err != nil {
			return nil, storageFailure(s.logger, "deactivate expired token failed", err, zap.String("token_id", token.ID))
		}
		return nil, appErrors.ErrTokenExpired
	}

	if s.clock.StatusAt(session, now) != models.SessionStatusOngoing {
		return nil, appErrors.ErrSessionNotOngoing
	}
	return token, nil
}

// Consume switches the token off as part of recording attendance.
func (s *TokenService) Consume(ctx context.Context, token *models.SessionToken, at time.Time) error {
	ok, err := s.repo.Consume(ctx, token.ID, at)
	if err != nil {
		return storageFailure(s.logger, "consume session token failed", err, zap.String("token_id", token.ID))
	}
	if !ok {
		return appErrors.ErrTokenNotFound
	}
	return nil
}

// HasIssued reports whether any token was ever issued for the session.
func (s *TokenService) HasIssued(ctx context.Context, sessionID string) (bool, error) {
	issued, err := s.repo.ExistsForSession(ctx, sessionID)
	if err != nil {
		return false, storageFailure(s.logger, "check issued tokens failed", err, zap.String("session_id", sessionID))
	}
	return issued, nil
}

// ReapExpired switches off every active token past its expiry.
func (s *TokenService) ReapExpired(ctx context.Context) (int64, error) {
	reaped, err := s.repo.DeactivateExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, storageFailure(s.logger, "reap expired tokens failed", err)
	}
	if reaped > 0 {
		s.metrics.AddTokensReaped(reaped)
		s.logger.Debug("expired tokens reaped", zap.Int64("count", reaped))
	}
	return reaped, nil
}

// RunReaper calls ReapExpired every interval until ctx is cancelled.
func (s *TokenService) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.ReapExpired(ctx)
		}
	}
}

func lockSession(ctx context.Context, sessions sessionLocker, sessionID string) (*models.ClassSession, error) {
	if !validID(sessionID) {
		return nil, appErrors.ErrSessionNotFound
	}
	session, err := sessions.FindByIDForUpdate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, err
	}
	if !session.Active {
		return nil, appErrors.ErrSessionNotFound
	}
	return session, nil
}
