package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const (
	conversationColumns = "id, user_id, title, created_at, updated_at"
	messageColumns      = "id, conversation_id, role, content, tool_calls, created_at"
)

func (s *Store) CreateConversation(ctx context.Context, userID string) (*Conversation, error) {
	now := s.now()
	conv := &Conversation{
		ID:        s.newID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	insert := s.sb.Insert("conversations").
		Columns("id", "user_id", "title", "created_at", "updated_at").
		Values(conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns ErrNotFound when the conversation is missing or
// owned by someone else.
func (s *Store) GetConversation(ctx context.Context, userID, id string) (*Conversation, error) {
	var conv Conversation
	q := s.sb.Select(conversationColumns).From("conversations").Where(sq.Eq{"id": id, "user_id": userID})
	if err := s.getOne(ctx, s.db, &conv, q); err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	query, args, err := s.sb.Select(conversationColumns).From("conversations").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build conversation query: %w", err)
	}
	convs := []Conversation{}
	if err := s.db.SelectContext(ctx, &convs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return convs, nil
}

func (s *Store) DeleteConversation(ctx context.Context, userID, id string) error {
	res, err := s.exec(ctx, s.db, s.sb.Delete("conversations").Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return affectedOrNotFound(res)
}

// TouchConversation refreshes updated_at. title is only stored when the
// conversation does not have one yet.
func (s *Store) TouchConversation(ctx context.Context, userID, id, title string) error {
	upd := s.sb.Update("conversations").
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id, "user_id": userID})
	if title != "" {
		upd = upd.Set("title", sq.Expr("COALESCE(title, ?)", title))
	}
	res, err := s.exec(ctx, s.db, upd)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return affectedOrNotFound(res)
}

// AppendMessage stores msg, filling in its id and creation time.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	msg.ID = s.newID()
	msg.CreatedAt = s.now()

	insert := s.sb.Insert("messages").
		Columns("id", "conversation_id", "role", "content", "tool_calls", "created_at").
		Values(msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.ToolCalls, msg.CreatedAt)
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit of the most recent messages of a
// conversation in chronological order. A limit <= 0 returns all of them.
// Callers must check ownership of the conversation first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	q := s.sb.Select(messageColumns).From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build message query: %w", err)
	}

	messages := []Message{}
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
