// Package openai implements Embedder (spec.md §4.6) against an
// OpenAI-compatible /v1/embeddings endpoint. Grounded on
// internal/llm/embeddings.go's concurrency pattern (bounded semaphore,
// one goroutine per input) and internal/embedding/embedding.go's request/
// response wire shape (model+input in, data[].embedding out). Uses
// net/http directly rather than the openai-go SDK client: the teacher's
// own embedding call sites (embeddings.go, embedding/embedding.go) both
// hit the endpoint over raw HTTP rather than through the chat SDK, so
// that is the idiom this adapter follows (see DESIGN.md).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vertigo15/docengine/internal/capabilities"
)

// Client implements capabilities.Embedder against one embeddings endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string // e.g. "https://api.openai.com/v1/embeddings"
	apiKey      string
	model       string
	dimension   int
	concurrency int
}

// New builds a Client. concurrency bounds simultaneous in-flight requests,
// defaulting to 5 as embeddings.go's GenerateEmbeddings does.
func New(baseURL, apiKey, model string, dimension, concurrency int, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		dimension:   dimension,
		concurrency: concurrency,
	}
}

type embedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embedDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

func (c *Client) Dimension() int { return c.dimension }

// Embed issues one request per text, fanned out across a bounded
// semaphore, matching embeddings.go's per-chunk-request rationale (some
// self-hosted embedding servers crash on batched inference).
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			vec, err := c.embedOne(ctx, text)
			out[i] = vec
			errs[i] = err
		}(i, text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Input: []string{text}, Model: c.model, EncodingFormat: "float"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embed: bad status %s: %s", resp.Status, string(raw))
	}
	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embed: parse response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response data")
	}
	return parsed.Data[0].Embedding, nil
}

var _ capabilities.Embedder = (*Client)(nil)
