package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const todoColumns = "id, title, completed, user_id, created_at, updated_at"

// ListOptions narrows ListTodos. The zero value lists everything.
type ListOptions struct {
	PendingOnly bool
	// TitleContains matches titles case-insensitively as a substring.
	TitleContains string
}

// ListTodos returns the user's todos, newest first. Ties on created_at are
// broken by id, which is time ordered.
func (s *Store) ListTodos(ctx context.Context, userID string, opts ListOptions) ([]Todo, error) {
	q := s.sb.Select(todoColumns).From("todos").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if opts.PendingOnly {
		q = q.Where(sq.Eq{"completed": false})
	}
	// SQLite's LOWER only folds ASCII, so titles are matched in Go there.
	if opts.TitleContains != "" && s.dialect == DialectPostgres {
		q = q.Where(sq.Expr(`title ILIKE ? ESCAPE '\'`, likePattern(opts.TitleContains)))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build todo query: %w", err)
	}
	todos := []Todo{}
	if err := s.db.SelectContext(ctx, &todos, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	if opts.TitleContains != "" && s.dialect != DialectPostgres {
		todos = filterTitle(todos, opts.TitleContains)
	}
	return todos, nil
}

func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}

func filterTitle(todos []Todo, term string) []Todo {
	term = strings.ToLower(term)
	out := todos[:0]
	for _, todo := range todos {
		if strings.Contains(strings.ToLower(todo.Title), term) {
			out = append(out, todo)
		}
	}
	return out
}

// CreateTodo inserts a pending todo. title must already be validated.
func (s *Store) CreateTodo(ctx context.Context, userID, title string) (*Todo, error) {
	now := s.now()
	todo := &Todo{
		ID:        s.newID(),
		Title:     title,
		Completed: false,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	insert := s.sb.Insert("todos").
		Columns("id", "title", "completed", "user_id", "created_at", "updated_at").
		Values(todo.ID, todo.Title, todo.Completed, todo.UserID, todo.CreatedAt, todo.UpdatedAt)
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return nil, fmt.Errorf("failed to insert todo: %w", err)
	}
	return todo, nil
}

// GetTodo returns ErrNotFound both when the todo does not exist and when it
// belongs to another user.
func (s *Store) GetTodo(ctx context.Context, userID, id string) (*Todo, error) {
	return s.getTodo(ctx, s.db, userID, id)
}

func (s *Store) getTodo(ctx context.Context, q sqlx.QueryerContext, userID, id string) (*Todo, error) {
	var todo Todo
	sel := s.sb.Select(todoColumns).From("todos").Where(sq.Eq{"id": id, "user_id": userID})
	if err := s.getOne(ctx, q, &todo, sel); err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}
	return &todo, nil
}

// UpdateTodo applies the non-nil fields of patch and always refreshes updated_at.
func (s *Store) UpdateTodo(ctx context.Context, userID, id string, patch TodoPatch) (*Todo, error) {
	upd := s.sb.Update("todos").Set("updated_at", s.now())
	if patch.Title != nil {
		upd = upd.Set("title", *patch.Title)
	}
	if patch.Completed != nil {
		upd = upd.Set("completed", *patch.Completed)
	}
	return s.updateTodo(ctx, userID, id, upd)
}

// ToggleTodo flips the completion flag in a single statement.
func (s *Store) ToggleTodo(ctx context.Context, userID, id string) (*Todo, error) {
	upd := s.sb.Update("todos").
		Set("completed", sq.Expr("NOT completed")).
		Set("updated_at", s.now())
	return s.updateTodo(ctx, userID, id, upd)
}

func (s *Store) updateTodo(ctx context.Context, userID, id string, upd sq.UpdateBuilder) (*Todo, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := s.exec(ctx, tx, upd.Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return nil, err
	}

	todo, err := s.getTodo(ctx, tx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit todo update: %w", err)
	}
	return todo, nil
}

func (s *Store) DeleteTodo(ctx context.Context, userID, id string) error {
	res, err := s.exec(ctx, s.db, s.sb.Delete("todos").Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return affectedOrNotFound(res)
}
