package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate reports a unique-constraint violation (email or username
// already in use). The register pre-check is not atomic, so inserts racing
// past it surface this instead of a generic failure.
var ErrDuplicate = errors.New("duplicate value")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SchemaPresent reports whether the three application tables exist. Used by
// the health endpoint as a best-effort diagnostic.
func (s *PostgresStore) SchemaPresent(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name IN ('users', 'mind_maps', 'user_applications')
	`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check schema: %w", err)
	}
	return count >= 3, nil
}

// ── Users ──

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, role, status, language, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.Status, &user.Language, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UserExists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 OR username = $2)`,
		email, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, username, password_hash, role, status, language)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, user.Email, user.Username, user.PasswordHash, user.Role, user.Status, user.Language).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, username, role, status, language, created_at, updated_at
		FROM users ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Username, &user.Role, &user.Status, &user.Language, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUserRoleStatus applies a partial update; at least one of role and
// status must be non-nil. Returns sql.ErrNoRows when the user is absent.
func (s *PostgresStore) UpdateUserRoleStatus(ctx context.Context, id string, role *string, status *Status) (User, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	if role != nil {
		args = append(args, *role)
		sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
	}
	if status != nil {
		args = append(args, *status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE users SET %s WHERE id = $%d
		RETURNING id, email, username, role, status, language, created_at, updated_at
	`, strings.Join(sets, ", "), len(args))

	var user User
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&user.ID, &user.Email, &user.Username, &user.Role, &user.Status, &user.Language, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// DeleteUser removes a user; owned mind maps cascade at the schema level.
func (s *PostgresStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// ── Registration applications ──

func (s *PostgresStore) ApplicationExists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_applications WHERE email = $1 OR username = $2)`,
		email, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check application exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertApplication(ctx context.Context, application Application) (Application, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_applications (email, username, password_hash, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at, updated_at
	`, application.Email, application.Username, application.PasswordHash, application.Reason).
		Scan(&application.ID, &application.Status, &application.CreatedAt, &application.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Application{}, ErrDuplicate
		}
		return Application{}, fmt.Errorf("insert application: %w", err)
	}
	return application, nil
}

func (s *PostgresStore) ListPendingApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, username, reason, status, created_at, updated_at
		FROM user_applications WHERE status = $1 ORDER BY created_at DESC
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	applications := make([]Application, 0)
	for rows.Next() {
		var application Application
		if err := rows.Scan(&application.ID, &application.Email, &application.Username, &application.Reason, &application.Status, &application.CreatedAt, &application.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		applications = append(applications, application)
	}
	return applications, rows.Err()
}

func (s *PostgresStore) GetApplication(ctx context.Context, id string) (Application, error) {
	var application Application
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, reason, status, created_at, updated_at
		FROM user_applications WHERE id = $1
	`, id).Scan(&application.ID, &application.Email, &application.Username, &application.PasswordHash, &application.Reason, &application.Status, &application.CreatedAt, &application.UpdatedAt)
	if err != nil {
		return Application{}, err
	}
	return application, nil
}

// SetApplicationStatus marks an application terminal. Returns sql.ErrNoRows
// when the application is absent.
func (s *PostgresStore) SetApplicationStatus(ctx context.Context, id string, status Status) error {
	var updated string
	err := s.db.QueryRowContext(ctx, `
		UPDATE user_applications SET status = $1, updated_at = NOW() WHERE id = $2
		RETURNING id
	`, status, id).Scan(&updated)
	return err
}

// ── Mind maps ──

// ListMindMaps returns map metadata (no content) visible to the caller:
// public maps plus, when callerID is non-empty, the caller's own maps.
// Newest-updated first.
func (s *PostgresStore) ListMindMaps(ctx context.Context, callerID string) ([]MindMap, error) {
	const columns = `id, user_id, title, description, is_public, created_at, updated_at`
	var (
		rows *sql.Rows
		err  error
	)
	if callerID != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+columns+` FROM mind_maps
			WHERE is_public = TRUE OR user_id = $1
			ORDER BY updated_at DESC
		`, callerID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+columns+` FROM mind_maps
			WHERE is_public = TRUE
			ORDER BY updated_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list mind maps: %w", err)
	}
	defer rows.Close()

	maps := make([]MindMap, 0)
	for rows.Next() {
		var m MindMap
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Description, &m.IsPublic, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mind map: %w", err)
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (s *PostgresStore) GetMindMap(ctx context.Context, id string) (MindMap, error) {
	var m MindMap
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, content, is_public, created_at, updated_at
		FROM mind_maps WHERE id = $1
	`, id).Scan(&m.ID, &m.UserID, &m.Title, &m.Description, &m.Content, &m.IsPublic, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return MindMap{}, err
	}
	return m, nil
}

func (s *PostgresStore) InsertMindMap(ctx context.Context, m MindMap) (MindMap, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mind_maps (id, user_id, title, description, content, is_public)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, m.ID, m.UserID, m.Title, m.Description, m.Content, m.IsPublic).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return MindMap{}, fmt.Errorf("insert mind map: %w", err)
	}
	return m, nil
}

// UpdateMindMap filters on id AND owner in one statement, so a non-owner's
// attempt is indistinguishable from an absent map (sql.ErrNoRows).
func (s *PostgresStore) UpdateMindMap(ctx context.Context, id, ownerID, title string, description *string, content string, isPublic bool) (MindMap, error) {
	var m MindMap
	err := s.db.QueryRowContext(ctx, `
		UPDATE mind_maps
		SET title = $1, description = $2, content = $3, is_public = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6
		RETURNING id, user_id, title, description, content, is_public, created_at, updated_at
	`, title, description, content, isPublic, id, ownerID).
		Scan(&m.ID, &m.UserID, &m.Title, &m.Description, &m.Content, &m.IsPublic, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return MindMap{}, err
	}
	return m, nil
}

// DeleteMindMap uses the same id+owner filter as UpdateMindMap.
func (s *PostgresStore) DeleteMindMap(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mind_maps WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete mind map: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete mind map affected: %w", err)
	}
	return affected > 0, nil
}
