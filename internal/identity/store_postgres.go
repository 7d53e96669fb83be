package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hzi-braunschweig/pia-system/pkg/domain"
	"github.com/hzi-braunschweig/pia-system/pkg/platform/sentinel"
)

// PostgresStore persists users with pgx.
//
// Table:
//
//	users (
//	    id UUID PRIMARY KEY,
//	    username TEXT NOT NULL,
//	    email TEXT NOT NULL,
//	    email_verified BOOLEAN NOT NULL DEFAULT FALSE,
//	    password_hash TEXT NOT NULL,
//	    roles TEXT[] NOT NULL DEFAULT '{}',
//	    required_actions TEXT[] NOT NULL DEFAULT '{}',
//	    created_at TIMESTAMPTZ NOT NULL,
//	    UNIQUE (lower(username)), UNIQUE (lower(email))
//	)
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, email_verified, password_hash, roles, required_actions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID.String(), user.Username, user.Email, user.EmailVerified,
		user.PasswordHash, user.Roles, actionsToStrings(user.RequiredActions), user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.UserID) (*User, error) {
	return s.findBy(ctx, `WHERE id = $1`, id.String())
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findBy(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *PostgresStore) findBy(ctx context.Context, where string, arg any) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, email, email_verified, password_hash, roles, required_actions, created_at
		FROM users `+where, arg)

	var (
		u       User
		rawID   string
		actions []string
	)
	err := row.Scan(&rawID, &u.Username, &u.Email, &u.EmailVerified,
		&u.PasswordHash, &u.Roles, &actions, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	id, err := domain.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse stored user id: %w", err)
	}
	u.ID = id
	u.RequiredActions = actionsFromStrings(actions)
	return &u, nil
}

func (s *PostgresStore) Update(ctx context.Context, user *User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, email_verified = $3, password_hash = $4, roles = $5, required_actions = $6
		WHERE id = $1
	`, user.ID.String(), user.Email, user.EmailVerified, user.PasswordHash,
		user.Roles, actionsToStrings(user.RequiredActions))
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func actionsToStrings(actions []RequiredAction) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

func actionsFromStrings(raw []string) []RequiredAction {
	out := make([]RequiredAction, len(raw))
	for i, s := range raw {
		out[i] = RequiredAction(s)
	}
	return out
}
