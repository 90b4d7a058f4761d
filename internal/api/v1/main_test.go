package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"task-manager/configs"
	v1 "task-manager/internal/api/v1"
	"task-manager/internal/config"
	"task-manager/internal/middleware"
	"task-manager/internal/models"
	"task-manager/internal/notify"
	"task-manager/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(e notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

type testApp struct {
	t      *testing.T
	app    *fiber.App
	deps   *config.Dependencies
	events *recordingPublisher
}

// CreateTestApp wires the routes against an in-memory store.
func CreateTestApp(t *testing.T) *testApp {
	t.Helper()
	store := repository.NewMemoryStore()
	cfg := configs.Config{
		JWTSecret:      "test-secret",
		BcryptCost:     bcrypt.MinCost,
		AvatarMaxBytes: 1_000_000,
	}
	events := &recordingPublisher{}
	deps := config.NewDependencies(cfg, store.Users(), store.Tasks(), events)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.FiberErrorHandler})
	app.Use(middleware.ErrorHandler())
	v1.RegisterRoutes(app, deps)

	return &testApp{t: t, app: app, deps: deps, events: events}
}

type response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, v), string(r.Body))
}

func (r response) message(t *testing.T) string {
	t.Helper()
	var env struct {
		Message string `json:"message"`
		Success bool   `json:"success"`
		Status  int    `json:"status"`
	}
	r.decode(t, &env)
	require.False(t, env.Success)
	require.Equal(t, r.Status, env.Status)
	return env.Message
}

func (a *testApp) send(req *http.Request, token string) response {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return response{Status: resp.StatusCode, Header: resp.Header, Body: body}
}

// do sends body, when non-nil, as JSON.
func (a *testApp) do(method, path, token string, body any) response {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token)
}

type session struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func (a *testApp) signup(name, email, password string) session {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/users", "", map[string]any{
		"name": name, "email": email, "password": password,
	})
	require.Equal(a.t, http.StatusCreated, resp.Status, string(resp.Body))
	var s session
	resp.decode(a.t, &s)
	return s
}

func (a *testApp) createTask(token, description string, completed bool) models.Task {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/tasks", token, map[string]any{
		"description": description, "completed": completed,
	})
	require.Equal(a.t, http.StatusCreated, resp.Status, string(resp.Body))
	var task models.Task
	resp.decode(a.t, &task)
	return task
}

type fixture struct {
	*testApp
	bob, sally                  session
	taskOne, taskTwo, taskThree models.Task
}

// setupDatabase seeds two users; Bob owns the first two tasks, Sally the third.
func setupDatabase(t *testing.T) *fixture {
	a := CreateTestApp(t)
	f := &fixture{testApp: a}
	f.bob = a.signup("Bob", "bob@example.com", "56what!!")
	f.sally = a.signup("Sally", "sally@example.com", "myhouse099@@")
	f.taskOne = a.createTask(f.bob.Token, "First task", false)
	f.taskTwo = a.createTask(f.bob.Token, "Second task", true)
	f.taskThree = a.createTask(f.sally.Token, "Third task", true)
	return f
}
