package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{"id", "username", "password", "role", "status", "phone", "created_at", "last_login"}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), mock
}

func TestRepository_FindByUsername(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice", "abc.def", "staff", "active", "555-0100", created, nil))

	user, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, RoleStaff, user.Role)
	assert.Equal(t, StatusActive, user.Status)
	require.NotNil(t, user.Phone)
	assert.Equal(t, "555-0100", *user.Phone)
	assert.Equal(t, created, user.CreatedAt)
	assert.Nil(t, user.LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindByUsernameNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE username = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestRepository_FindByIDStoreFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRepository_Insert(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	phone := "555-0100"

	mock.ExpectQuery(`INSERT INTO users \(username, password, role, status, phone\)`).
		WithArgs("alice", "hash.salt", "staff", "active", "555-0100").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice", "hash.salt", "staff", "active", "555-0100", created, nil))

	user, err := repo.Insert(context.Background(), NewUser{
		Username:     "alice",
		PasswordHash: "hash.salt",
		Role:         RoleStaff,
		Status:       StatusActive,
		Phone:        &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertWithoutPhone(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("bob", "hash.salt", "staff", "active", nil).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(2), "bob", "hash.salt", "staff", "active", nil, time.Now(), nil))

	user, err := repo.Insert(context.Background(), NewUser{
		Username: "bob", PasswordHash: "hash.salt", Role: RoleStaff, Status: StatusActive,
	})
	require.NoError(t, err)
	assert.Nil(t, user.Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Insert(context.Background(), NewUser{Username: "alice", PasswordHash: "x.y", Role: RoleStaff, Status: StatusActive})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestRepository_UpdateLastLogin(t *testing.T) {
	repo, mock := newMockRepository(t)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE users SET last_login = \$2 WHERE id = \$1`).
		WithArgs(int64(1), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateLastLogin(context.Background(), 1, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_List(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lastLogin := created.Add(time.Hour)

	mock.ExpectQuery(`SELECT .* FROM users ORDER BY id ASC`).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "admin", "a.b", "admin", "active", nil, created, lastLogin).
			AddRow(int64(2), "alice", "c.d", "staff", "inactive", "555-0100", created, nil))

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, RoleAdmin, users[0].Role)
	require.NotNil(t, users[0].LastLogin)
	assert.Equal(t, lastLogin, *users[0].LastLogin)
	assert.Equal(t, StatusInactive, users[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_EnsureAdmin(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO users .* ON CONFLICT \(username\)`).
		WithArgs("root", "hash.salt").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))

	inserted, err := repo.EnsureAdmin(context.Background(), "root", "hash.salt")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
