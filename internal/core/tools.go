package core

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"gwi.com/todo-assistant/internal/store"
)

//go:embed tools.yaml
var toolsYAML []byte

type toolSpec struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

// Toolbox holds the fixed set of todo tools the assistant can call.
type Toolbox struct {
	todos   *TodoService
	specs   []toolSpec
	schemas map[string]*jsonschema.Schema
}

func NewToolbox(todos *TodoService) (*Toolbox, error) {
	var specs []toolSpec
	if err := yaml.Unmarshal(toolsYAML, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse tool declarations: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(specs))
	for _, spec := range specs {
		raw, err := json.Marshal(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for %s: %w", spec.Name, err)
		}
		url := spec.Name + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("failed to add schema for %s: %w", spec.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", spec.Name, err)
		}
		schemas[spec.Name] = schema
	}

	return &Toolbox{todos: todos, specs: specs, schemas: schemas}, nil
}

// Names returns the tool names in declaration order.
func (t *Toolbox) Names() []string {
	names := make([]string, len(t.specs))
	for i, spec := range t.specs {
		names[i] = spec.Name
	}
	return names
}

// Declarations converts the tools into Gemini function declarations.
func (t *Toolbox) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(t.specs))
	for _, spec := range t.specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  toGenaiSchema(spec.Parameters),
		})
	}
	return decls
}

func toGenaiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	schema := &genai.Schema{}
	switch m["type"] {
	case "object":
		schema.Type = genai.TypeObject
	case "string":
		schema.Type = genai.TypeString
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "integer":
		schema.Type = genai.TypeInteger
	case "number":
		schema.Type = genai.TypeNumber
	case "array":
		schema.Type = genai.TypeArray
	}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				schema.Properties[name] = toGenaiSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = toGenaiSchema(items)
	}
	if required, ok := m["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

// ToolCall is one validated tool invocation. The set of implementations is
// closed: only ParseToolCall creates them.
type ToolCall interface {
	Name() string
	run(ctx context.Context, t *Toolbox, userID string) (ToolResult, error)
}

type CreateTodoCall struct {
	Title string `json:"title"`
}

type ListTodosCall struct {
	IncludeCompleted *bool `json:"include_completed"`
}

type CompleteTodoCall struct {
	TodoIdentifier string `json:"todo_identifier"`
	Completed      *bool  `json:"completed"`
}

type UpdateTodoCall struct {
	TodoIdentifier string `json:"todo_identifier"`
	NewTitle       string `json:"new_title"`
}

type DeleteTodoCall struct {
	TodoIdentifier string `json:"todo_identifier"`
}

type SearchTodosCall struct {
	Query string `json:"query"`
}

func (CreateTodoCall) Name() string   { return "create_todo" }
func (ListTodosCall) Name() string    { return "list_todos" }
func (CompleteTodoCall) Name() string { return "complete_todo" }
func (UpdateTodoCall) Name() string   { return "update_todo" }
func (DeleteTodoCall) Name() string   { return "delete_todo" }
func (SearchTodosCall) Name() string  { return "search_todos" }

var ErrUnknownTool = errors.New("unknown tool")

// ParseToolCall validates args against the schema of the named tool and
// decodes them. Unknown tools and invalid arguments are rejected.
func (t *Toolbox) ParseToolCall(name string, args map[string]any) (ToolCall, error) {
	schema, ok := t.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %s", name, schemaErrorMessage(err))
	}

	var call ToolCall
	switch name {
	case "create_todo":
		call, err = decodeCall[CreateTodoCall](raw)
	case "list_todos":
		call, err = decodeCall[ListTodosCall](raw)
	case "complete_todo":
		call, err = decodeCall[CompleteTodoCall](raw)
	case "update_todo":
		call, err = decodeCall[UpdateTodoCall](raw)
	case "delete_todo":
		call, err = decodeCall[DeleteTodoCall](raw)
	case "search_todos":
		call, err = decodeCall[SearchTodosCall](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return call, nil
}

func decodeCall[T ToolCall](raw []byte) (ToolCall, error) {
	var call T
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, err
	}
	return call, nil
}

// schemaErrorMessage returns the first leaf cause of a validation error.
func schemaErrorMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}

// ToolResult is what a tool reports back to the model and what is recorded
// on the assistant message.
type ToolResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Todo    *todoSummary  `json:"todo,omitempty"`
	Todos   []todoSummary `json:"todos,omitempty"`
	Total   *int          `json:"total,omitempty"`
	Matches []todoMatch   `json:"matches,omitempty"`
}

type todoSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at"`
}

type todoMatch struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func summarize(todo *store.Todo) *todoSummary {
	return &todoSummary{
		ID:        todo.ID,
		Title:     todo.Title,
		Completed: todo.Completed,
		CreatedAt: todo.CreatedAt.Format(time.RFC3339),
	}
}

func failure(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Map renders the result as a generic JSON object.
func (r ToolResult) Map() map[string]any {
	raw, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"success": false, "message": "failed to encode tool result"}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"success": false, "message": "failed to encode tool result"}
	}
	return m
}

// Execute parses and runs a tool call for userID. Rejected calls and domain
// failures come back as unsuccessful results; the error is reserved for
// storage failures.
func (t *Toolbox) Execute(ctx context.Context, userID, name string, args map[string]any) (ToolResult, error) {
	call, err := t.ParseToolCall(name, args)
	if err != nil {
		return failure("%s", err.Error()), nil
	}
	return call.run(ctx, t, userID)
}

// domainFailure turns validation and not-found errors into a result and
// passes anything else through.
func domainFailure(err error) (ToolResult, error) {
	switch KindOf(err) {
	case KindValidation, KindNotFound:
		var e *Error
		errors.As(err, &e)
		return failure("%s", e.Message), nil
	}
	return ToolResult{}, err
}

// resolve finds the single todo identified by an id or a case-insensitive
// partial title. A nil todo with a result means the lookup failed.
func (t *Toolbox) resolve(ctx context.Context, userID, identifier string) (*store.Todo, *ToolResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		res := failure("todo_identifier must not be empty")
		return nil, &res, nil
	}
	if _, err := uuid.Parse(identifier); err == nil {
		todo, err := t.todos.Get(ctx, userID, identifier)
		if err == nil {
			return todo, nil, nil
		}
		if KindOf(err) != KindNotFound {
			return nil, nil, err
		}
	}

	todos, err := t.todos.Search(ctx, userID, store.ListOptions{TitleContains: identifier})
	if err != nil {
		return nil, nil, err
	}
	switch len(todos) {
	case 0:
		res := failure("No todo found matching '%s'", identifier)
		return nil, &res, nil
	case 1:
		return &todos[0], nil, nil
	}

	matches := make([]todoMatch, len(todos))
	for i, todo := range todos {
		matches[i] = todoMatch{ID: todo.ID, Title: todo.Title}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Title < matches[j].Title })
	res := failure("Multiple todos match '%s'. Please be more specific.", identifier)
	res.Matches = matches
	return nil, &res, nil
}

func (c CreateTodoCall) run(ctx context.Context, t *Toolbox, userID string) (ToolResult, error) {
	todo, err := t.todos.Create(ctx, userID, c.Title)
	if err != nil {
		return domainFailure(err)
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Created todo: '%s'", todo.Title),
		Todo:    summarize(todo),
	}, nil
}

func (c ListTodosCall) run(ctx context.Context, t *Toolbox, userID string) (ToolResult, error) {
	includeCompleted := c.IncludeCompleted == nil || *c.IncludeCompleted
	todos, err := t.todos.Search(ctx, userID, store.ListOptions{PendingOnly: !includeCompleted})
	if err != nil {
		return ToolResult{}, err
	}
	return listResult(todos, fmt.Sprintf("Found %d todo(s)", len(todos))), nil
}

func (c SearchTodosCall) run(ctx context.Context, t *Toolbox, userID string) (ToolResult, error) {
	query := strings.TrimSpace(c.Query)
	if query == "" {
		return failure("query must not be empty"), nil
	}
	todos, err := t.todos.Search(ctx, userID, store.ListOptions{TitleContains: query})
	if err != nil {
		return ToolResult{}, err
	}
	return listResult(todos, fmt.Sprintf("Found %d todo(s) matching '%s'", len(todos), query)), nil
}

func listResult(todos []store.Todo, message string) ToolResult {
	summaries := make([]todoSummary, len(todos))
	for i := range todos {
		summaries[i] = *summarize(&todos[i])
	}
	total := len(todos)
	return ToolResult{Success: true, Message: message, Todos: summaries, Total: &total}
}

func (c CompleteTodoCall) run(ctx context.Context, t *Toolbox, userID string) (ToolResult, error) {
	completed := c.Completed == nil || *c.Completed
	todo, res, err := t.resolve(ctx, userID, c.TodoIdentifier)
	if err != nil || res != nil {
		return derefResult(res), err
	}

	if todo.Completed == completed {
		msg := fmt.Sprintf("Todo '%s' is already completed", todo.Title)
		if !completed {
			msg = fmt.Sprintf("Todo '%s' is not completed yet", todo.Title)
		}
		return ToolResult{Success: true, Message: msg, Todo: summarize(todo)}, nil
	}

	updated, err := t.todos.Update(ctx, userID, todo.ID, store.TodoPatch{Completed: &completed})
	if err != nil {
		return domainFailure(err)
	}
	msg := fmt.Sprintf("Marked '%s' as completed", updated.Title)
	if !completed {
		msg = fmt.Sprintf("Marked '%s' as not completed", updated.Title)
	}
	return ToolResult{Success: true, Message: msg, Todo: summarize(updated)}, nil
}

func (c UpdateTodoCall) run(ctx context.Context, t *Toolbox, userID string) (ToolResult, error) {
	todo, res, err := t.resolve(ctx, userID, c.TodoIdentifier)
	if err != nil || res != nil {
		return derefResult(res), err
	}

	newTitle := c.NewTitle
	updated, err := t.todos.Update(ctx, userID, todo.ID, store.TodoPatch{Title: &newTitle})
	if err != nil {
		return domainFailure(err)
	}
	return ToolResult{
		Success: true,
		Message: fmt.Sprintf("Updated '%s' to '%s'", todo.Title, updated.Title),
		Todo:    summarize(updated),
	}, nil
}

func (c DeleteTodoCall) run(ctx context.Context, t *Toolbox, userID string) (ToolResult, error) {
	todo, res, err := t.resolve(ctx, userID, c.TodoIdentifier)
	if err != nil || res != nil {
		return derefResult(res), err
	}

	if err := t.todos.Delete(ctx, userID, todo.ID); err != nil {
		return domainFailure(err)
	}
	return ToolResult{Success: true, Message: fmt.Sprintf("Deleted todo: '%s'", todo.Title)}, nil
}

func derefResult(res *ToolResult) ToolResult {
	if res == nil {
		return ToolResult{}
	}
	return *res
}
