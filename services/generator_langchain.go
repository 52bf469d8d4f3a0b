package services

import (
	"context"
	"fmt"
	"log"

	"github.com/tmc/langchaingo/llms"

	"github.com/itish2003/voicenotes/models"
)

// LangchainGenerator answers through any langchaingo model, e.g. llms/ollama.
type LangchainGenerator struct {
	llm  llms.Model
	name string
}

func NewLangchainGenerator(llm llms.Model, name string) *LangchainGenerator {
	return &LangchainGenerator{llm: llm, name: name}
}

func (g *LangchainGenerator) Generate(ctx context.Context, noteContext, question string) (string, error) {
	log.Printf("SERVICE-HELPER: Sending prompt to %s...", g.name)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, BuildSystemPrompt(noteContext)),
	}
	for _, turn := range buildConversation(question) {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}

	resp, err := g.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %s call failed: %v", ErrGeneration, g.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("%w: %s returned an empty answer", ErrGeneration, g.name)
	}
	return resp.Choices[0].Content, nil
}
