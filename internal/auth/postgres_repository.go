package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresUserRepository implements UserRepository using PostgreSQL.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, provider, provider_id, avatar_url, created_at, updated_at, last_login_at`

// FindUserByID looks up a user by primary key.
func (r *PostgresUserRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindUserByProvider looks up a user by their OAuth provider and provider ID.
func (r *PostgresUserRepository) FindUserByProvider(ctx context.Context, provider Provider, providerID string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`, string(provider), providerID)
}

// FindUserByEmail looks up a user by their email address.
func (r *PostgresUserRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, NormalizeEmail(email))
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// CreateUser inserts a new user into the database.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user User) (User, error) {
	const query = `
		INSERT INTO users (id, email, name, password_hash, provider, provider_id, avatar_url, created_at, updated_at, last_login_at)
		VALUES (:id, :email, :name, :password_hash, :provider, :provider_id, :avatar_url, :created_at, :updated_at, :last_login_at)
	`

	user.Email = NormalizeEmail(user.Email)
	if _, err := r.db.NamedExecContext(ctx, query, newUserRow(user)); err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, err
	}
	return user, nil
}

// UpdateUser overwrites the mutable fields of an existing user.
func (r *PostgresUserRepository) UpdateUser(ctx context.Context, user User) error {
	const query = `
		UPDATE users
		SET email = :email, name = :name, password_hash = :password_hash, provider = :provider,
			provider_id = :provider_id, avatar_url = :avatar_url, updated_at = :updated_at, last_login_at = :last_login_at
		WHERE id = :id
	`

	user.Email = NormalizeEmail(user.Email)
	result, err := r.db.NamedExecContext(ctx, query, newUserRow(user))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUser
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// userRow is a database row representation of User.
type userRow struct {
	ID           uuid.UUID      `db:"id"`
	Email        string         `db:"email"`
	Name         string         `db:"name"`
	PasswordHash sql.NullString `db:"password_hash"`
	Provider     string         `db:"provider"`
	ProviderID   sql.NullString `db:"provider_id"`
	AvatarURL    string         `db:"avatar_url"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLoginAt  time.Time      `db:"last_login_at"`
}

func newUserRow(u User) userRow {
	return userRow{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: sql.NullString{String: u.PasswordHash, Valid: u.PasswordHash != ""},
		Provider:     string(u.Provider),
		ProviderID:   sql.NullString{String: u.ProviderID, Valid: u.ProviderID != ""},
		AvatarURL:    u.AvatarURL,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastLoginAt:  u.LastLoginAt,
	}
}

func (r *userRow) toUser() *User {
	return &User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash.String,
		Provider:     Provider(r.Provider),
		ProviderID:   r.ProviderID.String,
		AvatarURL:    r.AvatarURL,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLoginAt:  r.LastLoginAt,
	}
}

// PostgresAttemptStore implements AttemptStore using PostgreSQL.
type PostgresAttemptStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresAttemptStore creates a new PostgresAttemptStore.
func NewPostgresAttemptStore(db *sqlx.DB) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db, now: time.Now}
}

// Put inserts a new attempt.
func (s *PostgresAttemptStore) Put(ctx context.Context, attempt Attempt, ttl time.Duration) error {
	const query = `
		INSERT INTO oauth_attempts (state, code_verifier, code_challenge, provider, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, query,
		attempt.State,
		attempt.CodeVerifier,
		attempt.CodeChallenge,
		string(attempt.Provider),
		attempt.CreatedAt,
		attempt.CreatedAt.Add(ttl),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateState
	}
	return err
}

// Take deletes the attempt and returns it in one statement, so only one caller can win.
func (s *PostgresAttemptStore) Take(ctx context.Context, state string) (*Attempt, error) {
	const query = `
		DELETE FROM oauth_attempts
		WHERE state = $1
		RETURNING state, code_verifier, code_challenge, provider, created_at, expires_at
	`

	var row attemptRow
	if err := s.db.GetContext(ctx, &row, query, state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	attempt := row.toAttempt()
	if attempt.Expired(s.now()) {
		return nil, nil
	}
	return attempt, nil
}

// DeleteExpired removes all expired attempts.
func (s *PostgresAttemptStore) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM oauth_attempts WHERE expires_at <= $1`
	result, err := s.db.ExecContext(ctx, query, s.now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type attemptRow struct {
	State         string    `db:"state"`
	CodeVerifier  string    `db:"code_verifier"`
	CodeChallenge string    `db:"code_challenge"`
	Provider      string    `db:"provider"`
	CreatedAt     time.Time `db:"created_at"`
	ExpiresAt     time.Time `db:"expires_at"`
}

func (r *attemptRow) toAttempt() *Attempt {
	return &Attempt{
		State:         r.State,
		CodeVerifier:  r.CodeVerifier,
		CodeChallenge: r.CodeChallenge,
		Provider:      Provider(r.Provider),
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
}
