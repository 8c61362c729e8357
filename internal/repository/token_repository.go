package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/database"
)

const tokenColumns = `id, session_id, secret_digest, issued_at, expires_at, active, consumed_at`

// TokenRepository persists session tokens. A partial unique index keeps at
// most one active token per session.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// FindActiveBySession returns the active token of a session, expired or not.
func (r *TokenRepository) FindActiveBySession(ctx context.Context, sessionID string) (*models.SessionToken, error) {
	var token models.SessionToken
	query := fmt.Sprintf(`SELECT %s FROM session_tokens WHERE session_id = $1 AND active = TRUE`, tokenColumns)
	if err := database.Conn(ctx, r.db).GetContext(ctx, &token, query, sessionID); err != nil {
		return nil, fmt.Errorf("find active session token: %w", err)
	}
	return &token, nil
}

// FindActiveByDigest returns the active token with the digest bound to the session.
func (r *TokenRepository) FindActiveByDigest(ctx context.Context, sessionID, digest string) (*models.SessionToken, error) {
	var token models.SessionToken
	query := fmt.Sprintf(`SELECT %s FROM session_tokens WHERE session_id = $1 AND secret_digest = $2 AND active = TRUE`, tokenColumns)
	if err := database.Conn(ctx, r.db).GetContext(ctx, &token, query, sessionID, digest); err != nil {
		return nil, fmt.Errorf("find session token: %w", err)
	}
	return &token, nil
}

// ExistsForSession reports whether any token was ever issued for the session.
func (r *TokenRepository) ExistsForSession(ctx context.Context, sessionID string) (bool, error) {
	const query = `SELECT 1 FROM session_tokens WHERE session_id = $1 LIMIT 1`
	var exists int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check session tokens: %w", err)
	}
	return true, nil
}

// Insert stores a new active token. ErrDuplicate means another active token
// already exists for the session.
func (r *TokenRepository) Insert(ctx context.Context, token *models.SessionToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.Active = true
	const query = `INSERT INTO session_tokens (id, session_id, secret_digest, issued_at, expires_at, active)
VALUES (:id, :session_id, :secret_digest, :issued_at, :expires_at, :active)`
	if _, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, token); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert session token: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert session token: %w", err)
	}
	return nil
}

// Deactivate switches a token off. It reports false when the token was
// already inactive.
func (r *TokenRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE session_tokens SET active = FALSE WHERE id = $1 AND active = TRUE`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("deactivate session token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate session token rows: %w", err)
	}
	return affected > 0, nil
}

// Consume deactivates a token and stamps the consumption time. It reports
// false when a concurrent caller consumed it first.
func (r *TokenRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE session_tokens SET active = FALSE, consumed_at = $2 WHERE id = $1 AND active = TRUE`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("consume session token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume session token rows: %w", err)
	}
	return affected > 0, nil
}

// DeactivateExpired switches off every active token whose expiry is before now.
func (r *TokenRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE session_tokens SET active = FALSE WHERE active = TRUE AND expires_at < $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired session tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate expired session tokens rows: %w", err)
	}
	return affected, nil
}
