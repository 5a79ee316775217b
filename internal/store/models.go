package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         *string   `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type Todo struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Completed bool      `db:"completed" json:"completed"`
	UserID    string    `db:"user_id" json:"userId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// TodoPatch carries the optional fields of an update. Nil means "leave as is".
type TodoPatch struct {
	Title     *string
	Completed *bool
}

type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     *string   `db:"title" json:"title"` // Nullable
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"` // "user" or "assistant"
	Content        string    `db:"content" json:"content"`
	ToolCalls      ToolCalls `db:"tool_calls" json:"tool_calls"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ToolCall records one tool invocation made while producing an assistant message.
type ToolCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result"`
}

// ToolCalls is stored as a JSON text column; an empty list is stored as NULL.
type ToolCalls []ToolCall

func (tc ToolCalls) Value() (driver.Value, error) {
	if len(tc) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]ToolCall(tc))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool calls: %w", err)
	}
	return string(b), nil
}

func (tc *ToolCalls) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*tc = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported tool_calls column type %T", src)
	}
	if len(raw) == 0 {
		*tc = nil
		return nil
	}
	var calls []ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return fmt.Errorf("failed to unmarshal tool calls: %w", err)
	}
	*tc = calls
	return nil
}
