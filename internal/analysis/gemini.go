package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/iliyamo/agriplan/internal/apperr"
)

// GeminiConfig configures GeminiProvider.
type GeminiConfig struct {
	APIKey     string
	Model      string
	MaxRetries int           // retries after the first attempt
	RetryBase  time.Duration // first backoff step, doubled per retry
	BaseURL    string        // overrides the API endpoint; empty uses the default
}

// GeminiProvider calls the Gemini API through google.golang.org/genai and
// asks for a JSON reply.
type GeminiProvider struct {
	client     *genai.Client
	model      string
	maxRetries uint64
	retryBase  time.Duration
	log        *zap.Logger
}

// NewGeminiProvider creates the genai client.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, log *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{
		client:     client,
		model:      cfg.Model,
		maxRetries: uint64(cfg.MaxRetries),
		retryBase:  cfg.RetryBase,
		log:        log.Named("gemini"),
	}, nil
}

// Generate sends the prompt (and image, if any) and returns the reply text.
// Rate-limit and server-side failures are retried with exponential backoff
// until ctx is done or the retry budget is spent.
func (g *GeminiProvider) Generate(ctx context.Context, p PromptPayload) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(p.Prompt)}
	if len(p.Image) > 0 {
		mime := p.MIMEType
		if mime == "" {
			mime = DefaultImageMIME
		}
		parts = append(parts, genai.NewPartFromBytes(p.Image, mime))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	var text string
	attempt := 0
	backoff := retry.WithMaxRetries(g.maxRetries, retry.NewExponential(g.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			if isTransient(err) {
				g.log.Warn("transient provider error", zap.Int("attempt", attempt), zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		text = resp.Text()
		if strings.TrimSpace(text) == "" {
			return errors.New("empty response")
		}
		return nil
	})
	if err != nil {
		return "", classifyProviderError(ctx, err)
	}
	return text, nil
}

// isTransient reports whether a genai error is worth retrying.
func isTransient(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return false
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func classifyProviderError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperr.ErrProvider, apperr.ErrProviderTimeout)
	}
	return fmt.Errorf("%w: %w", apperr.ErrProvider, err)
}
