package v1_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/models"
)

func listTasks(t *testing.T, f *fixture, token, query string) []models.Task {
	t.Helper()
	resp := f.do(http.MethodGet, "/tasks"+query, token, nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var tasks []models.Task
	resp.decode(t, &tasks)
	return tasks
}

func descriptions(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Description
	}
	return out
}

func TestCreateTask(t *testing.T) {
	f := setupDatabase(t)

	resp := f.do(http.MethodPost, "/tasks", f.bob.Token, map[string]any{
		"description": "  From my test  ",
		"owner":       f.sally.User.ID,
	})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var task models.Task
	resp.decode(t, &task)
	assert.Equal(t, "From my test", task.Description)
	assert.False(t, task.Completed)
	assert.Equal(t, f.bob.User.ID, task.Owner)
	assert.NotEmpty(t, task.ID)

	stored, err := f.deps.Tasks.FindByOwner(t.Context(), task.ID, f.bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, f.bob.User.ID, stored.Owner)
}

func TestCreateTask_Rejected(t *testing.T) {
	f := setupDatabase(t)

	cases := map[string]map[string]any{
		"missing description":   {"completed": true},
		"blank description":     {"description": "   "},
		"non-boolean completed": {"description": "Task", "completed": "yes"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := f.do(http.MethodPost, "/tasks", f.bob.Token, body)
			assert.Equal(t, http.StatusBadRequest, resp.Status, string(resp.Body))
		})
	}

	resp := f.do(http.MethodPost, "/tasks", "", map[string]any{"description": "Task"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Len(t, listTasks(t, f, f.bob.Token, ""), 2)
}

func TestListTasks_OwnerScoped(t *testing.T) {
	f := setupDatabase(t)

	assert.Equal(t, []string{"First task", "Second task"}, descriptions(listTasks(t, f, f.bob.Token, "")))
	assert.Equal(t, []string{"Third task"}, descriptions(listTasks(t, f, f.sally.Token, "")))

	assert.Equal(t, []string{"Second task"}, descriptions(listTasks(t, f, f.bob.Token, "?completed=true")))
	assert.Equal(t, []string{"First task"}, descriptions(listTasks(t, f, f.bob.Token, "?completed=false")))
	assert.Equal(t, []string{"Third task"}, descriptions(listTasks(t, f, f.sally.Token, "?completed=true")))
	assert.Empty(t, listTasks(t, f, f.sally.Token, "?completed=false"))

	// Unparseable filter values are ignored.
	assert.Len(t, listTasks(t, f, f.bob.Token, "?completed=maybe"), 2)
}

func TestListTasks_PaginationAndSort(t *testing.T) {
	f := setupDatabase(t)
	f.createTask(f.bob.Token, "A task", false)

	cases := []struct {
		query string
		want  []string
	}{
		{"?limit=1", []string{"First task"}},
		{"?limit=2&skip=1", []string{"Second task", "A task"}},
		{"?skip=3", []string{}},
		{"?limit=-1&skip=abc", []string{"First task", "Second task", "A task"}},
		{"?sortBy=description:asc", []string{"A task", "First task", "Second task"}},
		{"?sortBy=description:desc", []string{"Second task", "First task", "A task"}},
		{"?sortBy=createdAt:desc&limit=1", []string{"A task"}},
		{"?sortBy=owner:desc", []string{"First task", "Second task", "A task"}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.want, descriptions(listTasks(t, f, f.bob.Token, tc.query)))
		})
	}
}

func TestGetTask(t *testing.T) {
	f := setupDatabase(t)

	resp := f.do(http.MethodGet, "/tasks/"+f.taskOne.ID, f.bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var task models.Task
	resp.decode(t, &task)
	assert.Equal(t, f.taskOne, task)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/tasks/does-not-exist", f.bob.Token, nil).Status)
}

func TestTaskOwnership(t *testing.T) {
	f := setupDatabase(t)
	path := "/tasks/" + f.taskOne.ID

	get := f.do(http.MethodGet, path, f.sally.Token, nil)
	patch := f.do(http.MethodPatch, path, f.sally.Token, map[string]any{"completed": true})
	del := f.do(http.MethodDelete, path, f.sally.Token, nil)

	for _, resp := range []response{get, patch, del} {
		assert.Equal(t, http.StatusNotFound, resp.Status)
	}
	assert.Equal(t, get.message(t), del.message(t))

	stored, err := f.deps.Tasks.FindByOwner(t.Context(), f.taskOne.ID, f.bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, f.taskOne.Description, stored.Description)
	assert.False(t, stored.Completed)
}

func TestUpdateTask(t *testing.T) {
	f := setupDatabase(t)

	resp := f.do(http.MethodPatch, "/tasks/"+f.taskOne.ID, f.bob.Token, map[string]any{
		"description": "Renamed", "completed": true,
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	var task models.Task
	resp.decode(t, &task)
	assert.Equal(t, "Renamed", task.Description)
	assert.True(t, task.Completed)
	assert.Equal(t, f.bob.User.ID, task.Owner)
	assert.False(t, task.UpdatedAt.Before(f.taskOne.UpdatedAt))
}

func TestUpdateTask_Rejected(t *testing.T) {
	f := setupDatabase(t)

	cases := map[string]map[string]any{
		"owner field":        {"completed": true, "owner": f.sally.User.ID},
		"unknown field":      {"description": "Renamed", "location": "home"},
		"blank description":  {"description": ""},
		"non-boolean status": {"completed": "done"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := f.do(http.MethodPatch, "/tasks/"+f.taskOne.ID, f.bob.Token, body)
			assert.Equal(t, http.StatusBadRequest, resp.Status, string(resp.Body))
		})
	}

	stored, err := f.deps.Tasks.FindByOwner(t.Context(), f.taskOne.ID, f.bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "First task", stored.Description)
	assert.False(t, stored.Completed)
}

func TestDeleteTask(t *testing.T) {
	f := setupDatabase(t)

	resp := f.do(http.MethodDelete, "/tasks/"+f.taskTwo.ID, f.bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var task models.Task
	resp.decode(t, &task)
	assert.Equal(t, f.taskTwo.ID, task.ID)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/tasks/"+f.taskTwo.ID, f.bob.Token, nil).Status)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/tasks/"+f.taskTwo.ID, f.bob.Token, nil).Status)
	assert.Equal(t, []string{"First task"}, descriptions(listTasks(t, f, f.bob.Token, "")))
}
