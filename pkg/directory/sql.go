package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	account_id  TEXT PRIMARY KEY,
	given_name  TEXT NOT NULL,
	family_name TEXT NOT NULL,
	team_id     BIGINT NULL,
	level       INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Open connects to the user database and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite3" {
		// a single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY on concurrent first logins
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	return db, nil
}

// SQLRepository stores users in a SQL database. Queries use $n placeholders,
// which both lib/pq and go-sqlite3 accept.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository wraps db
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Migrate creates the users table if needed
func (r *SQLRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// GetUser fetches a user by account id
func (r *SQLRepository) GetUser(ctx context.Context, accountID string) (*User, error) {
	var (
		user   User
		teamID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, given_name, family_name, team_id, level
		FROM users WHERE account_id = $1
	`, accountID).Scan(&user.AccountID, &user.GivenName, &user.FamilyName, &teamID, &user.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if teamID.Valid {
		id := teamID.Int64
		user.TeamID = &id
	}
	return &user, nil
}

// InsertUser creates a user, ignoring conflicts on account id
func (r *SQLRepository) InsertUser(ctx context.Context, user *User) error {
	var teamID sql.NullInt64
	if user.TeamID != nil {
		teamID = sql.NullInt64{Int64: *user.TeamID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (account_id, given_name, family_name, team_id, level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO NOTHING
	`, user.AccountID, user.GivenName, user.FamilyName, teamID, user.Level)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}
