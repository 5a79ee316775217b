package core

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/todo-assistant/internal/store"
)

func TestHistoryContents(t *testing.T) {
	contents := historyContents([]store.Message{
		{Role: store.RoleUser, Content: "Add milk"},
		{Role: store.RoleAssistant, Content: "Done."},
		{Role: store.RoleAssistant, Content: "   "},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Add milk")}, contents[0].Parts)
	assert.Equal(t, "model", contents[1].Role)
}

func TestHistoryContents_AlternatesRoles(t *testing.T) {
	contents := historyContents([]store.Message{
		{Role: store.RoleAssistant, Content: "Created todo."},
		{Role: store.RoleUser, Content: "Add milk"},
		{Role: store.RoleUser, Content: "Add eggs"},
		{Role: store.RoleAssistant, Content: "Both added."},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Add milk"), genai.Text("Add eggs")}, contents[0].Parts)
	assert.Equal(t, "model", contents[1].Role)
}

func TestChatTurn_FoldsUnansweredMessageIntoPrompt(t *testing.T) {
	history, prompt := chatTurn([]store.Message{
		{Role: store.RoleUser, Content: "Add milk"},
		{Role: store.RoleAssistant, Content: "Done."},
		{Role: store.RoleUser, Content: "Add eggs"},
	}, "Did that work?")

	require.Len(t, history, 2)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("Add eggs"), genai.Text("Did that work?")}, prompt)

	history, prompt = chatTurn(nil, "hello")
	assert.Empty(t, history)
	assert.Equal(t, []genai.Part{genai.Text("hello")}, prompt)
}

func TestResponseHelpers(t *testing.T) {
	assert.Empty(t, responseText(nil))
	assert.Nil(t, responseFunctionCalls(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: "model",
				Parts: []genai.Part{
					genai.Text("Adding it. "),
					genai.FunctionCall{Name: "create_todo", Args: map[string]any{"title": "milk"}},
					genai.Text("One moment."),
				},
			},
		}},
	}

	assert.Equal(t, "Adding it. One moment.", responseText(resp))
	calls := responseFunctionCalls(resp)
	require.Len(t, calls, 1)
	assert.Equal(t, "create_todo", calls[0].Name)
	assert.Equal(t, "milk", calls[0].Args["title"])
}
