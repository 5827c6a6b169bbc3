package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// UserStore is the user-record collaborator the Service depends on. Errors
// other than ErrUserNotFound and ErrDuplicateUsername wrap ErrStoreUnavailable.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (UserRecord, error)
	FindByID(ctx context.Context, id int64) (UserRecord, error)
	Insert(ctx context.Context, user NewUser) (UserRecord, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	List(ctx context.Context) ([]UserRecord, error)
	EnsureAdmin(ctx context.Context, username, passwordHash string) (bool, error)
}

// Repository is the Postgres UserStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, username, password, role, status, phone, created_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (UserRecord, error) {
	var (
		user      UserRecord
		role      string
		status    string
		phone     sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &status, &phone, &user.CreatedAt, &lastLogin); err != nil {
		return UserRecord{}, err
	}

	user.Role = Role(role)
	user.Status = Status(status)
	user.CreatedAt = user.CreatedAt.UTC()
	if phone.Valid {
		value := phone.String
		user.Phone = &value
	}
	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		user.LastLogin = &value
	}
	return user, nil
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (UserRecord, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1
	`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("query user by username: %w: %w", ErrStoreUnavailable, err)
	}

	return user, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (UserRecord, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("query user by id: %w: %w", ErrStoreUnavailable, err)
	}

	return user, nil
}

func (r *Repository) Insert(ctx context.Context, user NewUser) (UserRecord, error) {
	var phone any
	if user.Phone != nil {
		phone = *user.Phone
	}

	created, err := scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role, status, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns+`
	`, user.Username, user.PasswordHash, string(user.Role), string(user.Status), phone))
	if err != nil {
		if isUniqueViolation(err) {
			return UserRecord{}, ErrDuplicateUsername
		}
		return UserRecord{}, fmt.Errorf("insert user: %w: %w", ErrStoreUnavailable, err)
	}

	return created, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_login = $2
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("update last login: %w: %w", ErrStoreUnavailable, err)
	}

	return nil
}

func (r *Repository) List(ctx context.Context) ([]UserRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	users := make([]UserRecord, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w: %w", ErrStoreUnavailable, err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w: %w", ErrStoreUnavailable, err)
	}

	return users, nil
}

// EnsureAdmin creates username as an active admin, or promotes and re-keys an
// existing row. It reports whether a new row was inserted.
func (r *Repository) EnsureAdmin(ctx context.Context, username, passwordHash string) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role, status)
		VALUES ($1, $2, 'admin', 'active')
		ON CONFLICT (username)
		DO UPDATE SET
			password = EXCLUDED.password,
			role = 'admin',
			status = 'active'
		RETURNING (xmax = 0)
	`, username, passwordHash).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert admin user: %w: %w", ErrStoreUnavailable, err)
	}

	return inserted, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
