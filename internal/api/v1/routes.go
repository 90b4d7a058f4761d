package v1

import (
	"github.com/gofiber/fiber/v2"

	"task-manager/internal/api/v1/handlers"
	"task-manager/internal/config"
	"task-manager/internal/middleware"
)

func RegisterRoutes(app *fiber.App, deps *config.Dependencies) {
	h := handlers.New(deps)
	auth := middleware.UseToken(deps.Tokens)

	// Users
	users := app.Group("/users")
	users.Post("/", h.Register)
	users.Post("/login", h.Login)
	users.Post("/logout", auth, h.Logout)
	users.Post("/logoutAll", auth, h.LogoutAll)
	users.Get("/me", auth, h.GetProfile)
	users.Patch("/me", auth, h.UpdateProfile)
	users.Delete("/me", auth, h.DeleteProfile)

	// Avatar
	users.Post("/me/avatar", auth, h.UploadAvatar)
	users.Delete("/me/avatar", auth, h.DeleteAvatar)
	users.Get("/:id/avatar", h.GetAvatar)

	// Tasks
	tasks := app.Group("/tasks", auth)
	tasks.Post("/", h.CreateTask)
	tasks.Get("/", h.ListTasks)
	tasks.Get("/:id", h.GetTask)
	tasks.Patch("/:id", h.UpdateTask)
	tasks.Delete("/:id", h.DeleteTask)
}
