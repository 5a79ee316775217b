package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gwi.com/todo-assistant/internal/store"
)

const (
	titleWords       = 5
	fallbackReply    = "I'm sorry, I couldn't process that request."
	maxMessageLength = 4000
	interruptedReply = "I ran into a problem before I could finish. The actions listed here were already carried out."
)

// ToolRunner executes a model-requested function for the current user and
// returns the result to send back to the model.
type ToolRunner func(ctx context.Context, name string, args map[string]any) (map[string]any, error)

// ChatModel produces the assistant's reply to message, calling run for every
// function the model invokes.
type ChatModel interface {
	Respond(ctx context.Context, history []store.Message, message string, run ToolRunner) (string, error)
}

// ChatObserver receives chat events for metrics.
type ChatObserver interface {
	ObserveToolCall(tool string, success bool)
	ObserveUpstreamFailure()
	ObserveTurn(duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveToolCall(string, bool) {}
func (noopObserver) ObserveUpstreamFailure()      {}
func (noopObserver) ObserveTurn(time.Duration)    {}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	ConversationID   string         `json:"conversation_id"`
	Message          *store.Message `json:"message"`
	AssistantMessage *store.Message `json:"assistant_message"`
}

// ConversationDetail is a conversation with its messages in chronological order.
type ConversationDetail struct {
	store.Conversation
	Messages []store.Message `json:"messages"`
}

type ChatService struct {
	store        *store.Store
	tools        *Toolbox
	model        ChatModel
	historyLimit int
	observer     ChatObserver
	logger       *slog.Logger
}

// NewChatService wires the chat turn. model may be nil, in which case every
// turn fails with UpstreamUnavailable after the user message is stored.
func NewChatService(s *store.Store, tools *Toolbox, model ChatModel, historyLimit int, logger *slog.Logger) *ChatService {
	return &ChatService{
		store:        s,
		tools:        tools,
		model:        model,
		historyLimit: historyLimit,
		observer:     noopObserver{},
		logger:       logger,
	}
}

// SetObserver replaces the metrics observer.
func (s *ChatService) SetObserver(o ChatObserver) {
	if o == nil {
		o = noopObserver{}
	}
	s.observer = o
}

// Send runs one chat turn. A missing conversationID starts a new
// conversation. The user message is persisted before the model is called and
// stays persisted when the model fails.
func (s *ChatService) Send(ctx context.Context, userID, text string, conversationID *string) (*ChatResult, error) {
	start := time.Now()
	defer func() { s.observer.ObserveTurn(time.Since(start)) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewValidationError("message must not be empty")
	}
	if len([]rune(text)) > maxMessageLength {
		return nil, NewValidationError("message must be at most %d characters", maxMessageLength)
	}

	conv, err := s.openConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, conv.ID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	userMsg := &store.Message{ConversationID: conv.ID, Role: store.RoleUser, Content: text}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	title := ""
	if conv.Title == nil {
		title = conversationTitle(text)
	}
	if err := s.store.TouchConversation(ctx, userID, conv.ID, title); err != nil {
		return nil, err
	}

	if s.model == nil {
		s.observer.ObserveUpstreamFailure()
		return nil, NewUpstreamUnavailableError(errors.New("no chat model configured"))
	}

	var (
		calls   store.ToolCalls
		toolErr error
	)
	run := func(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
		result, err := s.tools.Execute(ctx, userID, name, args)
		if err != nil {
			toolErr = err
			return nil, err
		}
		s.observer.ObserveToolCall(name, result.Success)
		m := result.Map()
		calls = append(calls, store.ToolCall{Tool: name, Arguments: args, Result: m})
		return m, nil
	}

	reply, err := s.model.Respond(ctx, history, text, run)
	if toolErr != nil {
		return nil, fmt.Errorf("tool execution failed: %w", toolErr)
	}
	if err != nil {
		s.observer.ObserveUpstreamFailure()
		s.logger.Error("chat model failed",
			slog.String("user_id", userID),
			slog.String("conversation_id", conv.ID),
			slog.Int("executed_tools", len(calls)),
			slog.Any("error", err),
		)
		if len(calls) > 0 {
			s.recordInterruptedTurn(ctx, userID, conv.ID, calls)
		}
		return nil, NewUpstreamUnavailableError(err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = fallbackReply
	}

	assistantMsg := &store.Message{
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        reply,
		ToolCalls:      calls,
	}
	if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	if err := s.store.TouchConversation(ctx, userID, conv.ID, ""); err != nil {
		return nil, err
	}

	return &ChatResult{
		ConversationID:   conv.ID,
		Message:          userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// recordInterruptedTurn stores the tools that already ran before the model
// failed, so the conversation shows them and a resent message has the context.
func (s *ChatService) recordInterruptedTurn(ctx context.Context, userID, convID string, calls store.ToolCalls) {
	msg := &store.Message{
		ConversationID: convID,
		Role:           store.RoleAssistant,
		Content:        interruptedReply,
		ToolCalls:      calls,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		s.logger.Error("failed to record interrupted chat turn",
			slog.String("conversation_id", convID),
			slog.Any("error", err),
		)
		return
	}
	if err := s.store.TouchConversation(ctx, userID, convID, ""); err != nil {
		s.logger.Warn("failed to touch conversation", slog.String("conversation_id", convID), slog.Any("error", err))
	}
}

func (s *ChatService) openConversation(ctx context.Context, userID string, conversationID *string) (*store.Conversation, error) {
	if conversationID == nil || strings.TrimSpace(*conversationID) == "" {
		return s.store.CreateConversation(ctx, userID)
	}
	conv, err := s.store.GetConversation(ctx, userID, *conversationID)
	if err != nil {
		return nil, conversationError(err)
	}
	return conv, nil
}

// conversationTitle uses the first words of the opening message.
func conversationTitle(text string) string {
	words := strings.Fields(text)
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

func (s *ChatService) GetConversation(ctx context.Context, userID, id string) (*ConversationDetail, error) {
	conv, err := s.store.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, conversationError(err)
	}
	messages, err := s.store.ListMessages(ctx, conv.ID, 0)
	if err != nil {
		return nil, err
	}
	return &ConversationDetail{Conversation: *conv, Messages: messages}, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, userID, id string) error {
	return conversationError(s.store.DeleteConversation(ctx, userID, id))
}

func conversationError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError("conversation")
	}
	return err
}
