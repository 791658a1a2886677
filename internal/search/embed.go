package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"rpy-converter/internal/worker"
)

const (
	defaultDimensions = 1536
	maxAttempts       = 3
)

// EmbeddingClient embeds dialogue text through an OpenAI-compatible
// /embeddings endpoint.
type EmbeddingClient struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	httpClient *http.Client
	backoff    time.Duration
}

// NewEmbeddingClient creates a client. baseURL is the API root, e.g.
// https://api.openai.com/v1.
func NewEmbeddingClient(apiKey, model, baseURL string, dimensions int) *EmbeddingClient {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &EmbeddingClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		backoff:    time.Second,
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func (ec *EmbeddingClient) WithHTTPClient(c *http.Client) *EmbeddingClient {
	ec.httpClient = c
	return ec
}

// Dimensions is the vector length requested from the API.
func (ec *EmbeddingClient) Dimensions() int { return ec.dimensions }

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// apiError is a non-200 answer; 429 and 5xx are worth retrying.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("embedding API error (status %d): %s", e.status, e.body)
}

func (e *apiError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// Embed returns one vector per text, in input order.
func (ec *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Input: texts, Model: ec.model, Dimensions: ec.dimensions})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	var resp *embeddingResponse
	for attempt := 1; ; attempt++ {
		resp, err = ec.post(ctx, body)
		if err == nil {
			break
		}
		apiErr, ok := err.(*apiError)
		if !ok || !apiErr.retryable() || attempt == maxAttempts {
			return nil, err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Retrying embedding request")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ec.backoff * time.Duration(attempt)):
		}
	}

	results := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(results) {
			results[d.Index] = d.Embedding
		}
	}
	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("embedding API returned no vector for input %d", i)
		}
	}

	log.Debug().
		Int("texts", len(texts)).
		Int("tokens", resp.Usage.TotalTokens).
		Msg("Generated embeddings")

	return results, nil
}

func (ec *EmbeddingClient) post(ctx context.Context, body []byte) (*embeddingResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ec.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ec.apiKey)

	resp, err := ec.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	var out embeddingResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal embedding response: %w", err)
	}
	return &out, nil
}

// EmbedBatch embeds texts in chunks of batchSize.
func (ec *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 32
	}

	all := make([][]float32, 0, len(texts))
	for n, batch := range worker.Batch(texts, batchSize) {
		vectors, err := ec.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", n+1, err)
		}
		all = append(all, vectors...)

		log.Debug().
			Int("processed", len(all)).
			Int("total", len(texts)).
			Msg("Embedding progress")
	}
	return all, nil
}

// EmbedQuery embeds a single search query.
func (ec *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	results, err := ec.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return results[0], nil
}
