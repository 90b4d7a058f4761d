package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"task-manager/internal/models"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	return hasPQCode(err, uniqueViolation)
}

func hasPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// Postgres timestamps carry microsecond precision.
func pgNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type postgresUsers struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUsers{db: db}
}

func (r *postgresUsers) Create(ctx context.Context, user *models.User) error {
	id := uuid.NewString()
	now := pgNow()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password, age, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, user.Name, user.Email, user.Password, user.Age, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *postgresUsers) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, email, password, age, created_at, updated_at FROM users WHERE "+where,
		arg).Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Age, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT token, issued_at FROM user_tokens WHERE user_id = $1 ORDER BY id", u.ID)
	if err != nil {
		return nil, fmt.Errorf("find user tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.Token, &t.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan user token: %w", err)
		}
		u.Tokens = append(u.Tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user tokens: %w", err)
	}
	return &u, nil
}

func (r *postgresUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *postgresUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

// expectRow maps a statement that touched no rows to ErrNotFound.
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresUsers) Update(ctx context.Context, user *models.User) error {
	now := pgNow()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $1, email = $2, password = $3, age = $4, updated_at = $5 WHERE id = $6`,
		user.Name, user.Email, user.Password, user.Age, now, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

func (r *postgresUsers) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectRow(res)
}

func (r *postgresUsers) HasToken(ctx context.Context, id, token string) (bool, error) {
	var held bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_tokens t WHERE t.user_id = u.id AND t.token = $2)
		 FROM users u WHERE u.id = $1`,
		id, token).Scan(&held)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("find user token: %w", err)
	}
	return held, nil
}

func (r *postgresUsers) AddToken(ctx context.Context, id string, token models.Token) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO user_tokens (user_id, token, issued_at)
		 SELECT id, $2, $3 FROM users WHERE id = $1`,
		id, token.Token, token.IssuedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return expectRow(res)
}

func (r *postgresUsers) exists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = $1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *postgresUsers) RemoveToken(ctx context.Context, id, token string) error {
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM user_tokens WHERE user_id = $1 AND token = $2", id, token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (r *postgresUsers) ClearTokens(ctx context.Context, id string) error {
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM user_tokens WHERE user_id = $1", id); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

func (r *postgresUsers) SetAvatar(ctx context.Context, id string, avatar []byte) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET avatar = $1 WHERE id = $2", avatar, id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return expectRow(res)
}

func (r *postgresUsers) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	var avatar []byte
	err := r.db.QueryRowContext(ctx, "SELECT avatar FROM users WHERE id = $1", id).Scan(&avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find avatar: %w", err)
	}
	if len(avatar) == 0 {
		return nil, ErrNotFound
	}
	return avatar, nil
}

type postgresTasks struct {
	db *sql.DB
}

func NewPostgresTaskRepository(db *sql.DB) TaskRepository {
	return &postgresTasks{db: db}
}

const taskColumns = "id, owner, description, completed, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	if err := row.Scan(&t.ID, &t.Owner, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *postgresTasks) Create(ctx context.Context, task *models.Task) error {
	id := uuid.NewString()
	now := pgNow()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner, description, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		id, task.Owner, task.Description, task.Completed, now)
	if err != nil {
		if hasPQCode(err, foreignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("insert task: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

func (r *postgresTasks) FindByOwner(ctx context.Context, id, owner string) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1 AND owner = $2", id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

var taskSortColumns = map[SortField]string{
	SortCreatedAt:   "created_at",
	SortUpdatedAt:   "updated_at",
	SortDescription: "description",
	SortCompleted:   "completed",
}

func (r *postgresTasks) ListByOwner(ctx context.Context, owner string, filter TaskFilter, page Page) ([]models.Task, error) {
	var sb strings.Builder
	args := []any{owner}
	sb.WriteString("SELECT " + taskColumns + " FROM tasks WHERE owner = $1")
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		fmt.Fprintf(&sb, " AND completed = $%d", len(args))
	}

	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s, id %s", taskSortColumns[page.sortField()], dir, dir)
	if page.Limit > 0 {
		args = append(args, page.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if page.Skip > 0 {
		args = append(args, page.Skip)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (r *postgresTasks) UpdateByOwner(ctx context.Context, task *models.Task) error {
	now := pgNow()
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET description = $1, completed = $2, updated_at = $3 WHERE id = $4 AND owner = $5`,
		task.Description, task.Completed, now, task.ID, task.Owner)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	task.UpdatedAt = now
	return nil
}

func (r *postgresTasks) DeleteByOwner(ctx context.Context, id, owner string) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		"DELETE FROM tasks WHERE id = $1 AND owner = $2 RETURNING "+taskColumns, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete task: %w", err)
	}
	return t, nil
}

func (r *postgresTasks) DeleteAllByOwner(ctx context.Context, owner string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE owner = $1", owner)
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return res.RowsAffected()
}
