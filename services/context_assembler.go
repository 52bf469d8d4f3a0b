package services

import (
	"log"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/itish2003/voicenotes/models"
)

const (
	contextSeparator = "\n\n"

	// fallbackEncoding is used for models tiktoken has no mapping for, such as Gemini and
	// Ollama models. Counts are then an estimate, which is all the budget needs.
	fallbackEncoding = "cl100k_base"
	// runesPerToken approximates token counts when no encoding can be loaded.
	runesPerToken = 4
)

// AssembleContext joins the non-empty texts of matches with a blank line, keeping the
// ranked order of the input. No matches (or only empty ones) yield "".
func AssembleContext(matches []models.Match) string {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.Text == "" {
			continue
		}
		texts = append(texts, m.Metadata.Text)
	}
	return strings.Join(texts, contextSeparator)
}

// ContextAssembler is AssembleContext with a token budget. Matches are taken in rank order
// while their running token total fits in MaxTokens; the first one that would overflow
// ends the context. MaxTokens <= 0 disables the budget.
type ContextAssembler struct {
	MaxTokens   int
	CountTokens func(text string) int
}

// NewContextAssembler counts tokens with the tokenizer of model, or cl100k_base when
// tiktoken does not know the model. The encoding is loaded on first use and reused.
func NewContextAssembler(maxTokens int, model string) ContextAssembler {
	return ContextAssembler{
		MaxTokens: maxTokens,
		CountTokens: newTokenCounter(func() (*tiktoken.Tiktoken, error) {
			if enc, err := tiktoken.EncodingForModel(model); err == nil {
				return enc, nil
			}
			return tiktoken.GetEncoding(fallbackEncoding)
		}),
	}
}

// newTokenCounter calls load once. If it fails, every count is len(runes)/4.
func newTokenCounter(load func() (*tiktoken.Tiktoken, error)) func(string) int {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			var err error
			if enc, err = load(); err != nil {
				log.Printf("SERVICE-HELPER: No tokenizer available, approximating token counts: %v", err)
			}
		})
		if enc == nil {
			return len([]rune(text)) / runesPerToken
		}
		return len(enc.Encode(text, nil, nil))
	}
}

func (a ContextAssembler) Assemble(matches []models.Match) string {
	if a.MaxTokens <= 0 || a.CountTokens == nil {
		return AssembleContext(matches)
	}

	kept := make([]models.Match, 0, len(matches))
	used := 0
	for _, m := range matches {
		if m.Metadata.Text == "" {
			continue
		}
		cost := a.CountTokens(m.Metadata.Text)
		if len(kept) > 0 {
			cost += a.CountTokens(contextSeparator)
		}
		if used+cost > a.MaxTokens {
			break
		}
		used += cost
		kept = append(kept, m)
	}
	return AssembleContext(kept)
}
