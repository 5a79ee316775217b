package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/todo-assistant/internal/store"
)

type scriptedCall struct {
	name string
	args map[string]any
}

// fakeModel calls the scripted tools in order and then replies.
type fakeModel struct {
	calls []scriptedCall
	reply string
	err   error

	gotHistory []store.Message
	gotMessage string
	results    []map[string]any
}

func (f *fakeModel) Respond(ctx context.Context, history []store.Message, message string, run ToolRunner) (string, error) {
	f.gotHistory = history
	f.gotMessage = message
	for _, c := range f.calls {
		res, err := run(ctx, c.name, c.args)
		if err != nil {
			return "", err
		}
		f.results = append(f.results, res)
	}
	return f.reply, f.err
}

type recordingObserver struct {
	tools    map[string]int
	failures int
	turns    int
}

func (o *recordingObserver) ObserveToolCall(tool string, success bool) {
	if o.tools == nil {
		o.tools = map[string]int{}
	}
	o.tools[tool]++
}
func (o *recordingObserver) ObserveUpstreamFailure()   { o.failures++ }
func (o *recordingObserver) ObserveTurn(time.Duration) { o.turns++ }

type chatFixture struct {
	store *store.Store
	todos *TodoService
	chat  *ChatService
	user  *store.User
}

func newChatFixture(t *testing.T, model ChatModel, historyLimit int) chatFixture {
	t.Helper()
	s := newTestStore(t)
	todos := NewTodoService(s)
	tb, err := NewToolbox(todos)
	require.NoError(t, err)
	return chatFixture{
		store: s,
		todos: todos,
		chat:  NewChatService(s, tb, model, historyLimit, discardLogger()),
		user:  newUser(t, s, "a@example.com"),
	}
}

func TestChatService_AddTodoScenario(t *testing.T) {
	model := &fakeModel{
		calls: []scriptedCall{{name: "create_todo", args: map[string]any{"title": "buy groceries"}}},
		reply: "I've added 'buy groceries' to your list.",
	}
	f := newChatFixture(t, model, 20)
	obs := &recordingObserver{}
	f.chat.SetObserver(obs)
	ctx := context.Background()

	res, err := f.chat.Send(ctx, f.user.ID, "Add buy groceries to my list", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, store.RoleUser, res.Message.Role)
	assert.Equal(t, "Add buy groceries to my list", res.Message.Content)
	assert.Equal(t, store.RoleAssistant, res.AssistantMessage.Role)
	assert.Equal(t, "I've added 'buy groceries' to your list.", res.AssistantMessage.Content)
	require.Len(t, res.AssistantMessage.ToolCalls, 1)
	call := res.AssistantMessage.ToolCalls[0]
	assert.Equal(t, "create_todo", call.Tool)
	assert.Equal(t, "buy groceries", call.Arguments["title"])
	assert.Equal(t, true, call.Result["success"])

	todos, err := f.todos.List(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "buy groceries", todos[0].Title)
	assert.False(t, todos[0].Completed)

	detail, err := f.chat.GetConversation(ctx, f.user.ID, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, res.Message.ID, detail.Messages[0].ID)
	assert.Equal(t, res.AssistantMessage.ID, detail.Messages[1].ID)
	require.Len(t, detail.Messages[1].ToolCalls, 1)
	require.NotNil(t, detail.Title)
	assert.Equal(t, "Add buy groceries to my...", *detail.Title)

	assert.Equal(t, 1, obs.tools["create_todo"])
	assert.Equal(t, 1, obs.turns)
	assert.Zero(t, obs.failures)
}

func TestChatService_ContinuesConversationWithHistory(t *testing.T) {
	model := &fakeModel{reply: "Sure."}
	f := newChatFixture(t, model, 3)
	ctx := context.Background()

	first, err := f.chat.Send(ctx, f.user.ID, "hello", nil)
	require.NoError(t, err)
	assert.Empty(t, model.gotHistory)

	convID := first.ConversationID
	_, err = f.chat.Send(ctx, f.user.ID, "second", &convID)
	require.NoError(t, err)
	require.Len(t, model.gotHistory, 2)
	assert.Equal(t, "hello", model.gotHistory[0].Content)

	third, err := f.chat.Send(ctx, f.user.ID, "third", &convID)
	require.NoError(t, err)
	assert.Equal(t, convID, third.ConversationID)
	require.Len(t, model.gotHistory, 3)
	assert.Equal(t, "Sure.", model.gotHistory[0].Content)
	assert.Equal(t, "second", model.gotHistory[1].Content)
	assert.Equal(t, "third", model.gotMessage)

	convs, err := f.chat.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.NotNil(t, convs[0].Title)
	assert.Equal(t, "hello", *convs[0].Title)
}

func TestChatService_UpstreamFailureKeepsUserMessage(t *testing.T) {
	model := &fakeModel{err: errors.New("503 from provider")}
	f := newChatFixture(t, model, 20)
	obs := &recordingObserver{}
	f.chat.SetObserver(obs)
	ctx := context.Background()

	_, err := f.chat.Send(ctx, f.user.ID, "Add milk", nil)
	require.Error(t, err)
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
	assert.Equal(t, 1, obs.failures)

	convs, err := f.chat.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	detail, err := f.chat.GetConversation(ctx, f.user.ID, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, store.RoleUser, detail.Messages[0].Role)
	assert.Equal(t, "Add milk", detail.Messages[0].Content)
}

func TestChatService_UpstreamFailureAfterToolRecordsExecutedCalls(t *testing.T) {
	model := &fakeModel{
		calls: []scriptedCall{{name: "create_todo", args: map[string]any{"title": "buy milk"}}},
		err:   errors.New("503 from provider"),
	}
	f := newChatFixture(t, model, 20)
	ctx := context.Background()

	_, err := f.chat.Send(ctx, f.user.ID, "Add milk", nil)
	require.Error(t, err)
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))

	todos, err := f.todos.List(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, todos, 1)

	convs, err := f.chat.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	detail, err := f.chat.GetConversation(ctx, f.user.ID, convs[0].ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assistant := detail.Messages[1]
	assert.Equal(t, store.RoleAssistant, assistant.Role)
	assert.Equal(t, interruptedReply, assistant.Content)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "create_todo", assistant.ToolCalls[0].Tool)
	assert.Equal(t, true, assistant.ToolCalls[0].Result["success"])
}

func TestChatService_NoModelConfigured(t *testing.T) {
	f := newChatFixture(t, nil, 20)
	ctx := context.Background()

	_, err := f.chat.Send(ctx, f.user.ID, "hi", nil)
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))

	convs, err := f.chat.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestChatService_EmptyReplyFallsBack(t *testing.T) {
	f := newChatFixture(t, &fakeModel{reply: "  "}, 20)

	res, err := f.chat.Send(context.Background(), f.user.ID, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, res.AssistantMessage.Content)
	assert.Nil(t, res.AssistantMessage.ToolCalls)
}

func TestChatService_Validation(t *testing.T) {
	f := newChatFixture(t, &fakeModel{reply: "ok"}, 20)
	ctx := context.Background()

	_, err := f.chat.Send(ctx, f.user.ID, "   ", nil)
	assert.Equal(t, KindValidation, KindOf(err))

	convs, err := f.chat.ListConversations(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestChatService_ForeignConversationIsNotFound(t *testing.T) {
	f := newChatFixture(t, &fakeModel{reply: "ok"}, 20)
	ctx := context.Background()
	other := newUser(t, f.store, "other@example.com")

	res, err := f.chat.Send(ctx, f.user.ID, "mine", nil)
	require.NoError(t, err)

	convID := res.ConversationID
	_, err = f.chat.Send(ctx, other.ID, "let me in", &convID)
	assert.Equal(t, KindNotFound, KindOf(err))

	missing := "no-such-conversation"
	_, err = f.chat.Send(ctx, f.user.ID, "hello?", &missing)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.chat.GetConversation(ctx, other.ID, convID)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, KindNotFound, KindOf(f.chat.DeleteConversation(ctx, other.ID, convID)))

	require.NoError(t, f.chat.DeleteConversation(ctx, f.user.ID, convID))
	_, err = f.chat.GetConversation(ctx, f.user.ID, convID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestChatService_RejectedToolCallIsRecorded(t *testing.T) {
	model := &fakeModel{
		calls: []scriptedCall{{name: "delete_everything", args: map[string]any{}}},
		reply: "I can't do that.",
	}
	f := newChatFixture(t, model, 20)

	res, err := f.chat.Send(context.Background(), f.user.ID, "wipe it all", nil)
	require.NoError(t, err)
	require.Len(t, res.AssistantMessage.ToolCalls, 1)
	assert.Equal(t, false, res.AssistantMessage.ToolCalls[0].Result["success"])
	require.Len(t, model.results, 1)
	assert.Equal(t, false, model.results[0]["success"])
}

func TestConversationTitle(t *testing.T) {
	assert.Equal(t, "hello", conversationTitle("hello"))
	assert.Equal(t, "one two three four five", conversationTitle("one  two three\tfour five"))
	assert.Equal(t, "one two three four five...", conversationTitle("one two three four five six"))
}
