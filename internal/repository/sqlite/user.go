package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/icar/swc-backend/internal/apperror"
	"github.com/icar/swc-backend/internal/model"
	"github.com/icar/swc-backend/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user, generating the ID and creation timestamp.
//
// INSERT-IF-ABSENT SEMANTICS:
// There is deliberately no SELECT-first here. The INSERT either succeeds
// or hits the UNIQUE(username) constraint; a constraint hit comes back as
// apperror.ErrConflict. That makes Create atomic under concurrency — two
// simultaneous registrations (or first federated logins) for one username
// produce exactly one row, and the loser gets a conflict it can handle.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, provider, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Provider,
		user.Role,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// FindByUsername retrieves a user by username.
// Returns apperror.ErrNotFound (wrapped) when no such user exists.
func (db *DB) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx,
		`SELECT id, username, password_hash, provider, role, created_at
		 FROM users WHERE username = ?`,
		username,
	)
}

func (db *DB) getUser(ctx context.Context, query, key string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx, query, key).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Provider,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", key, err)
	}

	return &u, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The modernc driver doesn't export a typed error for this, so
// we match the canonical message SQLite produces.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
