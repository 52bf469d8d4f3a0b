package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the length D of every vector Embed returns.
	Dimension() int
}

// ollamaEmbedRequest is used to structure the request to the Ollama embedding API.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is used to parse the embedding from the Ollama API response.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaEmbedder generates embeddings with a local Ollama server.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dimension  int
}

// NewOllamaEmbedder creates an embedder for model served at baseURL (e.g. http://localhost:11434).
func NewOllamaEmbedder(httpClient *http.Client, baseURL, model string, dimension int) *OllamaEmbedder {
	return &OllamaEmbedder{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimension:  dimension,
	}
}

func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Embed generates embeddings using Ollama.
func (e *OllamaEmbedder) Embed(c context.Context, textToEmbed string) ([]float32, error) {
	if strings.TrimSpace(textToEmbed) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", ErrValidation)
	}

	reqBody, err := json.Marshal(ollamaEmbedRequest{
		Model:  e.model,
		Prompt: textToEmbed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal ollama request: %v", ErrEmbedding, err)
	}

	httpReq, err := http.NewRequestWithContext(c, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ollama http request: %v", ErrEmbedding, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call ollama embedding api: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama api returned non-200 status: %d, body: %s", ErrEmbedding, resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode ollama response: %v", ErrEmbedding, err)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned an empty embedding", ErrEmbedding)
	}
	return ollamaResp.Embedding, nil
}
