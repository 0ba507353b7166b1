package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/services"
)

// TasksHandler handles maintenance tasks.
type TasksHandler struct {
	taskService services.TaskService
	logger      *zap.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(taskService services.TaskService, logger *zap.Logger) *TasksHandler {
	return &TasksHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// RegisterRoutes registers the tasks handler's routes on the given mux.
func (h *TasksHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/v1/tasks"
	supervisor := authMiddleware.Authorize(models.RoleManager, models.RoleAdmin)

	mux.HandleFunc("POST "+base, supervisor(h.Create))
	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET "+base+"/stats", authMiddleware.RequireAuth(h.Stats))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}/status", authMiddleware.RequireAuth(h.UpdateStatus))
	mux.HandleFunc("PUT "+base+"/{id}", supervisor(h.Update))
	mux.HandleFunc("DELETE "+base+"/{id}", supervisor(h.Delete))
}

// Create handles POST /api/v1/tasks
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "create task")
		return
	}

	var input models.TaskCreate
	if err := decodeJSON(r, &input); err != nil {
		WriteServiceError(w, h.logger, err, "create task")
		return
	}

	task, err := h.taskService.Create(r.Context(), caller, input)
	if err != nil {
		WriteServiceError(w, h.logger, err, "create task")
		return
	}
	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: task, Message: "Task created successfully"}); err != nil {
		h.logger.Error("Failed to write create task response", zap.Error(err))
	}
}

// List handles GET /api/v1/tasks
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list tasks")
		return
	}

	q := newQuery(r)
	filter := models.TaskFilter{
		PlantID:     q.optUUID("plantId"),
		PlantArea:   q.optString("plantArea"),
		EquipmentID: q.optUUID("equipmentId"),
		AssignedTo:  q.optUUID("assignedTo"),
	}
	if status := q.optString("status"); status != nil {
		s := models.TaskStatus(*status)
		filter.Status = &s
	}
	if priority := q.optString("priority"); priority != nil {
		p := models.Priority(*priority)
		filter.Priority = &p
	}
	if overdue := q.optBool("overdue"); overdue != nil {
		filter.Overdue = *overdue
	}
	page := q.page(DefaultPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "list tasks")
		return
	}

	result, err := h.taskService.List(r.Context(), caller, filter, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list tasks")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Stats handles GET /api/v1/tasks/stats
func (h *TasksHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "task stats")
		return
	}

	stats, err := h.taskService.Stats(r.Context(), caller)
	if err != nil {
		WriteServiceError(w, h.logger, err, "task stats")
		return
	}
	writeData(w, h.logger, http.StatusOK, stats)
}

// Get handles GET /api/v1/tasks/{id}
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "get task")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	task, err := h.taskService.Get(r.Context(), caller, id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get task")
		return
	}
	writeData(w, h.logger, http.StatusOK, task)
}

// UpdateStatus handles PUT /api/v1/tasks/{id}/status
func (h *TasksHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "update task status")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	var update models.StatusUpdate
	if err := decodeJSON(r, &update); err != nil {
		WriteServiceError(w, h.logger, err, "update task status")
		return
	}

	task, err := h.taskService.UpdateStatus(r.Context(), caller, id, update)
	if err != nil {
		WriteServiceError(w, h.logger, err, "update task status")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: task, Message: "Task status updated successfully"}); err != nil {
		h.logger.Error("Failed to write task status response", zap.Error(err))
	}
}

// Update handles PUT /api/v1/tasks/{id}
func (h *TasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "update task")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	var input models.TaskUpdate
	if err := decodeJSON(r, &input); err != nil {
		WriteServiceError(w, h.logger, err, "update task")
		return
	}

	task, err := h.taskService.Update(r.Context(), caller, id, input)
	if err != nil {
		WriteServiceError(w, h.logger, err, "update task")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: task, Message: "Task updated successfully"}); err != nil {
		h.logger.Error("Failed to write update task response", zap.Error(err))
	}
}

// Delete handles DELETE /api/v1/tasks/{id}
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "delete task")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.taskService.Delete(r.Context(), caller, id); err != nil {
		WriteServiceError(w, h.logger, err, "delete task")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Task deleted successfully"}); err != nil {
		h.logger.Error("Failed to write delete task response", zap.Error(err))
	}
}
