package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLRepository_GetUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db)
	columns := []string{"account_id", "given_name", "family_name", "team_id", "level"}

	t.Run("found with team", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_id, given_name, family_name, team_id, level FROM users").
			WithArgs("Google_123").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("Google_123", "Ada", "Lovelace", int64(7), 1))

		user, err := repo.GetUser(context.Background(), "Google_123")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "Ada", user.GivenName)
		require.NotNil(t, user.TeamID)
		assert.Equal(t, int64(7), *user.TeamID)
		assert.Equal(t, 1, user.Level)
	})

	t.Run("found without team", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_id").
			WithArgs("Slack_U1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("Slack_U1", "Grace", "Hopper", nil, 0))

		user, err := repo.GetUser(context.Background(), "Slack_U1")
		require.NoError(t, err)
		assert.Nil(t, user.TeamID)
	})

	t.Run("absent", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_id").
			WithArgs("Local_nobody").
			WillReturnRows(sqlmock.NewRows(columns))

		user, err := repo.GetUser(context.Background(), "Local_nobody")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT account_id").
			WithArgs("Local_x").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetUser(context.Background(), "Local_x")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_InsertUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("Local_bob1", "Bob", "Builder", sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.InsertUser(context.Background(), &User{AccountID: "Local_bob1", GivenName: "Bob", FamilyName: "Builder"})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("disk full"))
	err = repo.InsertUser(context.Background(), &User{AccountID: "Local_x"})
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrate is idempotent")

	team := int64(3)
	require.NoError(t, repo.InsertUser(ctx, &User{AccountID: "Local_bob1", GivenName: "Bob", FamilyName: "Builder", TeamID: &team}))
	require.NoError(t, repo.InsertUser(ctx, &User{AccountID: "Local_bob1", GivenName: "Other", FamilyName: "Name"}), "conflict is ignored")

	user, err := repo.GetUser(ctx, "Local_bob1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Bob", user.GivenName)
	assert.Equal(t, int64(3), *user.TeamID)
	assert.Empty(t, user.Email)
}
