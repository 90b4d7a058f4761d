package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"task-manager/internal/apperror"
	"task-manager/internal/middleware"
	"task-manager/internal/models"
	"task-manager/internal/repository"
	"task-manager/pkg/logger"
)

var taskUpdateKeys = []string{"description", "completed"}

type createTaskRequest struct {
	Description string `json:"description" validate:"required"`
	Completed   bool   `json:"completed"`
}

type updateTaskRequest struct {
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// CreateTask stores a task owned by the caller. Any owner in the body is
// ignored.
func (h *Handler) CreateTask(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req createTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, apperror.Wrap(apperror.ErrInvalidTask, err))
	}
	req.Description = strings.TrimSpace(req.Description)
	if err := h.deps.Validate.Struct(req); err != nil {
		logger.AuditLogger.Warn("Validation error during task create", zap.Error(err))
		return respond(c, apperror.Wrap(apperror.ErrInvalidTask, err))
	}

	task := &models.Task{Description: req.Description, Completed: req.Completed, Owner: user.ID}
	if err := h.deps.Tasks.Create(c.UserContext(), task); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// the owner was deleted after authentication
			return respond(c, apperror.ErrUserNotFound)
		}
		return respond(c, storeError(err))
	}

	logger.AuditLogger.Info("Task created", zap.String("task_id", task.ID), zap.String("owner", user.ID))
	return c.Status(fiber.StatusCreated).JSON(task)
}

// ListTasks returns the caller's tasks.
//
//	GET /tasks?completed=true
//	GET /tasks?limit=10&skip=20
//	GET /tasks?sortBy=createdAt:desc
func (h *Handler) ListTasks(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	filter, page := listQuery(c)

	tasks, err := h.deps.Tasks.ListByOwner(c.UserContext(), user.ID, filter, page)
	if err != nil {
		return respond(c, storeError(err))
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return c.JSON(tasks)
}

// listQuery parses the list parameters. Values that do not parse are ignored
// rather than rejected.
func listQuery(c *fiber.Ctx) (repository.TaskFilter, repository.Page) {
	var filter repository.TaskFilter
	if completed, err := strconv.ParseBool(c.Query("completed")); err == nil {
		filter.Completed = &completed
	}

	var page repository.Page
	if limit, err := strconv.ParseInt(c.Query("limit"), 10, 64); err == nil && limit >= 0 {
		page.Limit = limit
	}
	if skip, err := strconv.ParseInt(c.Query("skip"), 10, 64); err == nil && skip >= 0 {
		page.Skip = skip
	}
	if sortBy := c.Query("sortBy"); sortBy != "" {
		name, order, _ := strings.Cut(sortBy, ":")
		if field, ok := repository.ParseSortField(name); ok {
			page.Sort = field
			page.Desc = order == "desc"
		}
	}
	return filter, page
}

func (h *Handler) GetTask(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	task, err := h.deps.Tasks.FindByOwner(c.UserContext(), c.Params("id"), user.ID)
	if err != nil {
		return respond(c, storeError(err))
	}
	return c.JSON(task)
}

// UpdateTask applies an allow-listed partial update to one of the caller's
// tasks.
func (h *Handler) UpdateTask(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	body := c.Body()
	if err := checkUpdateKeys(body, taskUpdateKeys...); err != nil {
		logger.AuditLogger.Warn("Rejected task update", zap.String("task_id", c.Params("id")), zap.Error(err))
		return respond(c, err)
	}
	var req updateTaskRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return respond(c, apperror.Wrap(apperror.ErrInvalidTask, err))
		}
	}

	ctx := c.UserContext()
	task, err := h.deps.Tasks.FindByOwner(ctx, c.Params("id"), user.ID)
	if err != nil {
		return respond(c, storeError(err))
	}
	if req.Description != nil {
		task.Description = strings.TrimSpace(*req.Description)
		if task.Description == "" {
			return respond(c, apperror.ErrInvalidTask)
		}
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}

	if err := h.deps.Tasks.UpdateByOwner(ctx, task); err != nil {
		return respond(c, storeError(err))
	}
	logger.AuditLogger.Info("Task updated", zap.String("task_id", task.ID), zap.String("owner", user.ID))
	return c.JSON(task)
}

func (h *Handler) DeleteTask(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	task, err := h.deps.Tasks.DeleteByOwner(c.UserContext(), c.Params("id"), user.ID)
	if err != nil {
		return respond(c, storeError(err))
	}
	logger.AuditLogger.Info("Task deleted", zap.String("task_id", task.ID), zap.String("owner", user.ID))
	return c.JSON(task)
}
