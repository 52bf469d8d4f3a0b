package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/itish2003/voicenotes/models"
)

// Generator answers a question given the assembled note context.
type Generator interface {
	Generate(ctx context.Context, noteContext, question string) (string, error)
}

// GeminiGenerator answers with a single GenerateContent call.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(client *genai.Client, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// Generate sends the system instruction carrying the context plus one user turn to Gemini.
func (g *GeminiGenerator) Generate(c context.Context, noteContext, question string) (string, error) {
	log.Printf("SERVICE-HELPER: Sending prompt to Gemini (%s)...", g.model)

	systemInstruction := genai.NewContentFromText(BuildSystemPrompt(noteContext), genai.Role(genai.RoleUser))
	var contents []*genai.Content
	for _, turn := range buildConversation(question) {
		role := genai.Role(genai.RoleUser)
		if turn.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	result, err := g.client.Models.GenerateContent(c, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("%w: gemini api call failed: %v", ErrGeneration, err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrGeneration)
	}

	var responseText strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if p.Text != "" {
			responseText.WriteString(p.Text)
		}
	}
	if responseText.Len() == 0 {
		return "", fmt.Errorf("%w: gemini returned an empty answer", ErrGeneration)
	}
	return responseText.String(), nil
}
