package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/kbvec/internal/domain"
)

const (
	// DefaultEmbeddingModel is the model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultMaxBatchSize caps the number of inputs sent in one request
	DefaultMaxBatchSize = 100
)

var (
	// ErrEmptyText is returned when an input text is empty
	ErrEmptyText = errors.New("text cannot be empty")
)

// EmbeddingAPI sends one embeddings request for all inputs.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([]openai.Embedding, error)
}

// Client produces embedding vectors through an OpenAI-compatible API.
type Client struct {
	api          EmbeddingAPI
	dimensions   int
	maxBatchSize int
	limiter      *rate.Limiter
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	headers := map[string]string{}
	if cfg.Referer != "" {
		headers["HTTP-Referer"] = cfg.Referer
	}
	if cfg.Title != "" {
		headers["X-Title"] = cfg.Title
	}
	if len(headers) > 0 {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &headerTransport{base: base, headers: headers}
		httpClient = &wrapped
	}
	clientCfg.HTTPClient = httpClient

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// CreateEmbeddings calls the embeddings endpoint
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([]openai.Embedding, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// headerTransport adds fixed headers such as the OpenRouter attribution
// headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	MaxBatchSize        int
	RateLimit           float64 // requests per second, 0 disables
	Referer             string
	Title               string
	HTTPClient          *http.Client
}

// NewClientWithConfig creates a new client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	return newClient(NewOpenAIAdapter(cfg), cfg)
}

func newClient(api EmbeddingAPI, cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}

	c := &Client{
		api:          api,
		dimensions:   dimensions,
		maxBatchSize: maxBatch,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// MaxBatchSize is the largest number of texts EmbedBatch accepts.
func (c *Client) MaxBatchSize() int {
	return c.maxBatchSize
}

// EmbedBatch returns one vector per text, in input order, from a single
// provider request. Callers split inputs larger than MaxBatchSize.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if len(texts) > c.maxBatchSize {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("%s: %d > %d", domain.ErrBatchTooLarge.Message, len(texts), c.maxBatchSize))
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	data, err := c.api.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, providerError(err)
	}

	if len(data) != len(texts) {
		return nil, &domain.MalformedResponseError{
			Reason: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(data)),
		}
	}

	// Some compatible providers omit index, which decodes as all zeros.
	inOrder := len(data) > 1
	for _, d := range data {
		if d.Index != 0 {
			inOrder = false
			break
		}
	}

	out := make([][]float32, len(texts))
	for pos, d := range data {
		idx := d.Index
		if inOrder {
			idx = pos
		}
		if idx < 0 || idx >= len(texts) {
			return nil, &domain.MalformedResponseError{Reason: fmt.Sprintf("embedding index %d out of range", idx)}
		}
		if out[idx] != nil {
			return nil, &domain.MalformedResponseError{Reason: fmt.Sprintf("duplicate embedding index %d", idx)}
		}
		if len(d.Embedding) == 0 {
			return nil, &domain.MalformedResponseError{Reason: fmt.Sprintf("empty embedding at index %d", idx)}
		}
		if len(d.Embedding) != c.dimensions {
			return nil, &domain.MalformedResponseError{
				Reason: fmt.Sprintf("embedding has %d dimensions, expected %d", len(d.Embedding), c.dimensions),
			}
		}
		out[idx] = d.Embedding
	}

	return out, nil
}

// GenerateEmbedding embeds a single text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.ProviderError{StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body), Err: err}
	}
	return &domain.ProviderError{Err: err}
}
