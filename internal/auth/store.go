package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("auth: email already registered")
)

// UserRecord is a row of the users table.
type UserRecord struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// UserStore reads and writes users.
type UserStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
}

// PGUserStore implements UserStore on Postgres.
type PGUserStore struct {
	Pool *pgxpool.Pool
}

const pgUserColumns = `id::text, email, username, password_hash, is_admin, created_at`

func (s PGUserStore) CreateUser(ctx context.Context, email, username, passwordHash string) (UserRecord, error) {
	row := s.Pool.QueryRow(ctx, `INSERT INTO users (email, username, password_hash)
VALUES ($1, $2, $3) RETURNING `+pgUserColumns, email, username, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return UserRecord{}, ErrEmailTaken
		}
		return UserRecord{}, err
	}
	return u, nil
}

func (s PGUserStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	u, err := scanUser(s.Pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	return u, err
}

func (s PGUserStore) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return UserRecord{}, ErrUserNotFound
	}
	u, err := scanUser(s.Pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	return u, err
}

// SQLUserStore implements UserStore on SQLite through database/sql.
type SQLUserStore struct {
	DB  *sql.DB
	Now func() time.Time
}

const sqlUserColumns = `id, email, username, password_hash, is_admin, created_at`

func (s SQLUserStore) CreateUser(ctx context.Context, email, username, passwordHash string) (UserRecord, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	u := UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now().UTC(),
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (`+sqlUserColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.IsAdmin, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return UserRecord{}, ErrEmailTaken
		}
		return UserRecord{}, err
	}
	return u, nil
}

func (s SQLUserStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	return s.get(ctx, `SELECT `+sqlUserColumns+` FROM users WHERE email = ?`, email)
}

func (s SQLUserStore) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	return s.get(ctx, `SELECT `+sqlUserColumns+` FROM users WHERE id = ?`, id)
}

func (s SQLUserStore) get(ctx context.Context, query string, arg any) (UserRecord, error) {
	var (
		u       UserRecord
		created string
	)
	err := s.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsAdmin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	u.CreatedAt = parseSQLiteTime(created)
	return u, nil
}

func parseSQLiteTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	return u, err
}
