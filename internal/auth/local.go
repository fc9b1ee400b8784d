package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"trade-journal/internal/config"
	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
)

// LocalProvider is a Provider backed by SQLite.
type LocalProvider struct {
	db              *sql.DB
	ttl             time.Duration
	requireVerified bool
	cost            int
	audit           *security.AuditLogger
	log             zerolog.Logger
	now             func() time.Time
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider opens the account database at dbPath.
func NewLocalProvider(dbPath string, cfg config.AuthConfig, logger zerolog.Logger) (*LocalProvider, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	p := &LocalProvider{
		db:              db,
		ttl:             ttl,
		requireVerified: cfg.RequireVerified,
		cost:            bcrypt.DefaultCost,
		log:             logger.With().Str("component", "auth").Logger(),
		now:             time.Now,
	}

	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return p, nil
}

func (p *LocalProvider) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		uid TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash BLOB NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		email_verified INTEGER NOT NULL DEFAULT 0,
		verify_token TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		uid TEXT NOT NULL REFERENCES users(uid) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_uid ON sessions(uid);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_verify_token ON users(verify_token);
	`

	_, err := p.db.Exec(schema)
	return err
}

// SetAudit sets the audit trail for sign-in events.
func (p *LocalProvider) SetAudit(audit *security.AuditLogger) {
	p.audit = audit
}

// Close closes the database connection.
func (p *LocalProvider) Close() error {
	return p.db.Close()
}

// SignUp implements Provider.
func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (models.User, string, error) {
	email = normalizeEmail(email)
	if err := security.ValidateEmail(email); err != nil {
		return models.User{}, "", err
	}
	if err := security.ValidatePassword(password); err != nil {
		return models.User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return models.User{}, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
	}
	verifyToken := uuid.NewString()

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, password_hash, display_name, email_verified, verify_token, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, user.UID, user.Email, hash, user.DisplayName, verifyToken, p.now().UTC())
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			err = jerrors.ErrEmailTaken
		} else {
			err = fmt.Errorf("failed to create user: %w", err)
		}
		p.auditAuth(ctx, security.AuditSignUp, "", email, err)
		return models.User{}, "", err
	}

	p.auditAuth(ctx, security.AuditSignUp, user.UID, email, nil)
	p.log.Info().Str("user_id", user.UID).Msg("User signed up")
	return user, verifyToken, nil
}

// SignIn implements Provider.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)

	var hash []byte
	user, err := p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT uid, email, display_name, photo_url, email_verified, password_hash
		FROM users WHERE email = ?
	`, email), &hash)
	if errors.Is(err, sql.ErrNoRows) {
		// Same error for unknown email and wrong password
		err = jerrors.ErrInvalidCredentials
	}
	if err == nil {
		if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
			err = jerrors.ErrInvalidCredentials
		} else if p.requireVerified && !user.EmailVerified {
			err = jerrors.ErrEmailNotVerified
		}
	}
	if err != nil {
		p.auditAuth(ctx, security.AuditAuthFailed, user.UID, email, err)
		return Session{}, err
	}

	now := p.now().UTC()
	sess := Session{
		Token:     uuid.NewString(),
		User:      user,
		ExpiresAt: now.Add(p.ttl),
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (token, uid, created_at, expires_at) VALUES (?, ?, ?, ?)
	`, sess.Token, user.UID, now, sess.ExpiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	p.auditAuth(ctx, security.AuditSignIn, user.UID, email, nil)
	p.log.Info().Str("user_id", user.UID).Msg("User signed in")
	return sess, nil
}

// VerifyEmail implements Provider.
func (p *LocalProvider) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return jerrors.NewValidationError("token", "", "verification token is required")
	}

	var uid string
	err := p.db.QueryRowContext(ctx, `SELECT uid FROM users WHERE verify_token = ?`, token).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return jerrors.NewValidationError("token", security.MaskCredential(token), "unknown verification token")
	}
	if err != nil {
		return fmt.Errorf("failed to look up verification token: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, `
		UPDATE users SET email_verified = 1, verify_token = NULL WHERE uid = ?
	`, uid); err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}

	p.auditAuth(ctx, security.AuditEmailVerified, uid, "", nil)
	return nil
}

// SignOut implements Provider.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	var uid string
	err := p.db.QueryRowContext(ctx, `SELECT uid FROM sessions WHERE token = ?`, token).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	p.auditAuth(ctx, security.AuditSignOut, uid, "", nil)
	return nil
}

// Lookup implements Provider.
func (p *LocalProvider) Lookup(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, jerrors.ErrNotAuthenticated
	}

	var expires time.Time
	user, err := p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT u.uid, u.email, u.display_name, u.photo_url, u.email_verified, s.expires_at
		FROM sessions s JOIN users u ON u.uid = s.uid
		WHERE s.token = ?
	`, token), &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, jerrors.ErrNotAuthenticated
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to look up session: %w", err)
	}

	if !p.now().Before(expires) {
		if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
			p.log.Warn().Err(err).Msg("Failed to delete expired session")
		}
		return models.User{}, jerrors.ErrSessionExpired
	}

	return user, nil
}

// PurgeExpired deletes every expired session and returns how many were removed.
func (p *LocalProvider) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// scanUser reads the common user columns followed by one extra column.
func (p *LocalProvider) scanUser(row *sql.Row, extra interface{}) (models.User, error) {
	var u models.User
	err := row.Scan(&u.UID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.EmailVerified, extra)
	return u, err
}

func (p *LocalProvider) auditAuth(ctx context.Context, event security.AuditEventType, uid, email string, err error) {
	if aerr := p.audit.LogAuth(ctx, event, uid, email, err); aerr != nil {
		p.log.Warn().Err(aerr).Msg("Failed to write audit event")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
