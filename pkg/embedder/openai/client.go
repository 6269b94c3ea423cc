// Package openai provides an OpenAI implementation of the embedding provider.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client is an OpenAI embedding client.
//
// It implements the embedder.Provider interface using the OpenAI
// Embeddings API. A custom BaseURL can point it at any
// OpenAI-compatible endpoint.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI embedding client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API endpoint. Empty uses the official
	// OpenAI address.
	BaseURL string

	// Dimensions is the output vector dimension. Defaults to 1536,
	// the dimension of text-embedding-ada-002.
	Dimensions int
}

// NewClient creates a new OpenAI embedding client.
//
// Parameters:
//   - cfg: Configuration containing APIKey, BaseURL, and Dimensions
//
// Returns:
//   - *Client: The client instance
//   - error: Error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      openai.AdaEmbeddingV2,
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text into a vector embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("openai: no embedding data returned")
	}

	return toFloat64(resp.Data[0].Embedding), nil
}

// EmbedBatch converts multiple texts into vector embeddings in a single
// API call. The result order matches the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: unexpected number of embeddings (got %d, expected %d)", len(resp.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for i, data := range resp.Data {
		embeddings[i] = toFloat64(data.Embedding)
	}

	return embeddings, nil
}

// Dimensions returns the vector dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close releases resources. The OpenAI SDK needs no explicit shutdown;
// the method exists to satisfy the provider interface.
func (c *Client) Close() error {
	return nil
}

// toFloat64 converts the API's float32 vectors to float64.
func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
