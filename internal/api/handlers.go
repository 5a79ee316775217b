package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gwi.com/todo-assistant/internal/core"
	"gwi.com/todo-assistant/internal/store"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	auth   *core.AuthService
	todos  *core.TodoService
	chat   *core.ChatService
	db     Pinger
	logger *slog.Logger
}

func NewAPIHandler(auth *core.AuthService, todos *core.TodoService, chat *core.ChatService, db Pinger, logger *slog.Logger) *APIHandler {
	return &APIHandler{auth: auth, todos: todos, chat: chat, db: db, logger: logger}
}

// userID is only called behind AuthMiddleware.
func userID(r *http.Request) string {
	id, _ := UserIDFromContext(r.Context())
	return id
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "health check failed", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Accounts

type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, core.NewUnauthorizedError(err))
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DeleteAccount(r.Context(), userID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Todos

type CreateTodoRequest struct {
	Title string `json:"title"`
}

type UpdateTodoRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

func (h *APIHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := h.todos.List(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (h *APIHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req CreateTodoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	todo, err := h.todos.Create(r.Context(), userID(r), req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

func (h *APIHandler) GetTodo(w http.ResponseWriter, r *http.Request) {
	todo, err := h.todos.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (h *APIHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req UpdateTodoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	patch := store.TodoPatch{Title: req.Title, Completed: req.Completed}
	todo, err := h.todos.Update(r.Context(), userID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (h *APIHandler) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	todo, err := h.todos.Toggle(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (h *APIHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	if err := h.todos.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Chat

type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
}

// Chat answers validation failures with 422 rather than 400.
func (h *APIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeErrorStatus(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	res, err := h.chat.Send(r.Context(), userID(r), req.Message, req.ConversationID)
	if err != nil {
		h.writeErrorStatus(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chat.ListConversations(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *APIHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chat.GetConversation(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *APIHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.DeleteConversation(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
