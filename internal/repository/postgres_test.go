package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/models"
)

func newPostgresMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestPostgresUsers_CreateDuplicateEmail(t *testing.T) {
	db, mock := newPostgresMock(t)
	users := NewPostgresUserRepository(db)

	mock.ExpectExec(`(?s)^INSERT INTO users`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := users.Create(context.Background(), &models.User{Name: "Leah", Email: "leah@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestPostgresUsers_FindByIDLoadsTokens(t *testing.T) {
	db, mock := newPostgresMock(t)
	users := NewPostgresUserRepository(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password", "age", "created_at", "updated_at"}).
			AddRow("u1", "Leah", "leah@example.com", "digest", 27, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_tokens WHERE user_id = $1 ORDER BY id")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"token", "issued_at"}).
			AddRow("t1", now).
			AddRow("t2", now))

	user, err := users.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Leah", user.Name)
	assert.True(t, user.HasToken("t1"))
	assert.True(t, user.HasToken("t2"))
}

func TestPostgresUsers_MissingRows(t *testing.T) {
	db, mock := newPostgresMock(t)
	users := NewPostgresUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WillReturnError(sql.ErrNoRows)
	_, err := users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, users.Delete(ctx, "gone"), ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE id = $1")).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, users.RemoveToken(ctx, "gone", "t1"), ErrNotFound)
}

func TestPostgresTasks_ListByOwnerQuery(t *testing.T) {
	completed := true
	cases := []struct {
		name   string
		filter TaskFilter
		page   Page
		query  string
		args   []driver.Value
	}{
		{
			name:  "defaults",
			query: "WHERE owner = $1 ORDER BY created_at ASC, id ASC",
			args:  []driver.Value{"u1"},
		},
		{
			name:   "filtered and paged",
			filter: TaskFilter{Completed: &completed},
			page:   Page{Limit: 10, Skip: 20, Sort: SortDescription, Desc: true},
			query:  "WHERE owner = $1 AND completed = $2 ORDER BY description DESC, id DESC LIMIT $3 OFFSET $4",
			args:   []driver.Value{"u1", true, int64(10), int64(20)},
		},
		{
			name:  "skip only",
			page:  Page{Skip: 5, Sort: SortUpdatedAt},
			query: "WHERE owner = $1 ORDER BY updated_at ASC, id ASC OFFSET $2",
			args:  []driver.Value{"u1", int64(5)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newPostgresMock(t)
			tasks := NewPostgresTaskRepository(db)
			now := time.Now().UTC()

			mock.ExpectQuery(regexp.QuoteMeta(tc.query) + "$").
				WithArgs(tc.args...).
				WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "description", "completed", "created_at", "updated_at"}).
					AddRow("t1", "u1", "First task", true, now, now))

			got, err := tasks.ListByOwner(context.Background(), "u1", tc.filter, tc.page)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "First task", got[0].Description)
		})
	}
}

func TestPostgresTasks_ForeignTaskIsNotFound(t *testing.T) {
	db, mock := newPostgresMock(t)
	tasks := NewPostgresTaskRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE id = $1 AND owner = $2")).
		WithArgs("t1", "intruder").
		WillReturnError(sql.ErrNoRows)
	_, err := tasks.FindByOwner(ctx, "t1", "intruder")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = tasks.UpdateByOwner(ctx, &models.Task{ID: "t1", Owner: "intruder", Description: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM tasks WHERE id = $1 AND owner = $2 RETURNING")).
		WithArgs("t1", "intruder").
		WillReturnError(sql.ErrNoRows)
	_, err = tasks.DeleteByOwner(ctx, "t1", "intruder")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresTasks_CreateForMissingOwner(t *testing.T) {
	db, mock := newPostgresMock(t)
	tasks := NewPostgresTaskRepository(db)

	mock.ExpectExec(`(?s)^INSERT INTO tasks`).
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	err := tasks.Create(context.Background(), &models.Task{Owner: "gone", Description: "late"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresUsers_HasToken(t *testing.T) {
	db, mock := newPostgresMock(t)
	users := NewPostgresUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	held, err := users.HasToken(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.True(t, held)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("gone", "t1").
		WillReturnError(sql.ErrNoRows)
	_, err = users.HasToken(ctx, "gone", "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}
