package core

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const DefaultModelName = "gemini-1.5-flash-latest"

// Model produces the next model turn for a conversation history whose last
// entry is a "user" turn (text or function responses).
type Model interface {
	Generate(ctx context.Context, instructions string, tools []*genai.Tool, history []*genai.Content) (*genai.Content, error)
}

type LLMService struct {
	client    *genai.Client
	modelName string
}

func NewLLMService(ctx context.Context, apiKey, modelName string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GenAI client")
	}
	if modelName == "" {
		modelName = DefaultModelName
	}
	return &LLMService{client: client, modelName: modelName}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Errorf("Error closing GenAI client: %v", err)
		} else {
			log.Info("GenAI client closed.")
		}
	}
}

func (s *LLMService) Generate(ctx context.Context, instructions string, tools []*genai.Tool, history []*genai.Content) (*genai.Content, error) {
	if len(history) == 0 {
		return nil, errors.New("prompt history is empty for chat completion")
	}
	last := history[len(history)-1]
	if last.Role != "user" {
		return nil, errors.New("last message in history is not from 'user', cannot proceed with chat completion")
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instructions)},
	}
	model.Tools = tools

	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrap(err, "gemini chat SendMessage failed")
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn("Gemini response was empty or had no valid candidates/parts.")
		return &genai.Content{Role: "model"}, nil
	}

	content := resp.Candidates[0].Content
	content.Role = "model"
	return content, nil
}
