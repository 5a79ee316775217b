package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"gwi.com/todo-assistant/internal/store"
)

const chatSystemInstruction = "You are a helpful assistant that manages the user's todo list. " +
	"You can create, list, complete, reopen, rename, delete and search todos using the provided functions. " +
	"Be friendly and concise and confirm the actions you have taken. " +
	"If a function reports that several todos match, list them and ask the user which one they mean. " +
	"When showing todos, format them as a list using '- [ ] title' for open items and '- [x] title' for completed ones. " +
	"If the request is not about todos, politely steer the user back to their list."

var errEmptyPrompt = errors.New("message is empty")

// LLMService talks to Gemini with function calling enabled.
type LLMService struct {
	client        *genai.Client
	modelName     string
	maxToolRounds int
	tools         []*genai.FunctionDeclaration
	logger        *slog.Logger
}

func NewLLMService(ctx context.Context, apiKey, modelName string, maxToolRounds int, tools []*genai.FunctionDeclaration, logger *slog.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{
		client:        client,
		modelName:     modelName,
		maxToolRounds: maxToolRounds,
		tools:         tools,
		logger:        logger,
	}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Error("error closing GenAI client", slog.Any("error", err))
	} else {
		s.logger.Info("GenAI client closed")
	}
}

// Respond sends message with the prior history and executes the function
// calls the model asks for until it answers with text or the round limit is
// reached. The returned text may be empty.
func (s *LLMService) Respond(ctx context.Context, history []store.Message, message string, run ToolRunner) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errEmptyPrompt
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}
	if len(s.tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: s.tools}}
	}

	session := model.StartChat()
	var prompt []genai.Part
	session.History, prompt = chatTurn(history, message)

	resp, err := session.SendMessage(ctx, prompt...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	for round := 0; ; round++ {
		calls := responseFunctionCalls(resp)
		if len(calls) == 0 {
			return responseText(resp), nil
		}
		if round >= s.maxToolRounds {
			s.logger.Warn("tool round limit reached", slog.Int("rounds", round))
			return responseText(resp), nil
		}

		parts := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			result, err := run(ctx, call.Name, call.Args)
			if err != nil {
				return "", fmt.Errorf("tool %s failed: %w", call.Name, err)
			}
			parts = append(parts, genai.FunctionResponse{Name: call.Name, Response: result})
		}

		resp, err = session.SendMessage(ctx, parts...)
		if err != nil {
			return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
		}
	}
}

// historyContents maps stored messages to Gemini roles. Tool activity is not
// replayed; the assistant's text already summarizes it. Roles must alternate
// starting with the user, so consecutive messages of one role are merged and a
// leading model turn is dropped.
func historyContents(messages []store.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == store.RoleAssistant {
			role = "model"
		}
		if len(contents) == 0 && role == "model" {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.Text(m.Content))
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return contents
}

// chatTurn splits the history and the new message into the session history
// and the prompt. A trailing unanswered user turn, left by a failed request,
// is folded into the prompt.
func chatTurn(messages []store.Message, message string) ([]*genai.Content, []genai.Part) {
	history := historyContents(messages)
	prompt := []genai.Part{genai.Text(message)}
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		prompt = append(history[n-1].Parts, prompt...)
		history = history[:n-1]
	}
	return history, prompt
}

func firstCandidate(resp *genai.GenerateContentResponse) *genai.Content {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content
}

func responseText(resp *genai.GenerateContentResponse) string {
	content := firstCandidate(resp)
	if content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(text.String())
}

func responseFunctionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	content := firstCandidate(resp)
	if content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range content.Parts {
		switch fc := part.(type) {
		case genai.FunctionCall:
			calls = append(calls, fc)
		case *genai.FunctionCall:
			calls = append(calls, *fc)
		}
	}
	return calls
}
