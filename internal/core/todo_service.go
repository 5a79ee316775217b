package core

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gwi.com/todo-assistant/internal/store"
)

// MaxTitleLength is counted in characters, not bytes.
const MaxTitleLength = 500

// TodoService applies validation on top of the store and translates its
// errors. Every operation is scoped to userID.
type TodoService struct {
	store *store.Store
}

func NewTodoService(s *store.Store) *TodoService {
	return &TodoService{store: s}
}

// ValidateTitle trims title and checks it is non-empty and short enough.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", NewValidationError("title must not be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", NewValidationError("title must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}

func (s *TodoService) Create(ctx context.Context, userID, title string) (*store.Todo, error) {
	title, err := ValidateTitle(title)
	if err != nil {
		return nil, err
	}
	return s.store.CreateTodo(ctx, userID, title)
}

// List returns todos newest first; never nil.
func (s *TodoService) List(ctx context.Context, userID string) ([]store.Todo, error) {
	return s.store.ListTodos(ctx, userID, store.ListOptions{})
}

// Search lists todos with optional filters, newest first.
func (s *TodoService) Search(ctx context.Context, userID string, opts store.ListOptions) ([]store.Todo, error) {
	opts.TitleContains = strings.TrimSpace(opts.TitleContains)
	return s.store.ListTodos(ctx, userID, opts)
}

func (s *TodoService) Get(ctx context.Context, userID, id string) (*store.Todo, error) {
	todo, err := s.store.GetTodo(ctx, userID, id)
	return todo, todoError(err)
}

// Update applies the supplied fields only. A supplied title is validated
// like on create.
func (s *TodoService) Update(ctx context.Context, userID, id string, patch store.TodoPatch) (*store.Todo, error) {
	if patch.Title != nil {
		title, err := ValidateTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	todo, err := s.store.UpdateTodo(ctx, userID, id, patch)
	return todo, todoError(err)
}

func (s *TodoService) Toggle(ctx context.Context, userID, id string) (*store.Todo, error) {
	todo, err := s.store.ToggleTodo(ctx, userID, id)
	return todo, todoError(err)
}

func (s *TodoService) Delete(ctx context.Context, userID, id string) error {
	return todoError(s.store.DeleteTodo(ctx, userID, id))
}

func todoError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError("todo")
	}
	return err
}
