package genai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

const defaultTimeout = 8 * time.Second

var errAPIKeyRequired = errors.New("genai api key is required")

// Client issues single-shot prompts against a Gemini model.
type Client struct {
	models  *genai.Models
	model   string
	timeout time.Duration
}

// New builds the Gemini client from configuration.
func New(ctx context.Context, cfg config.GenAIConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	raw, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{models: raw.Models, model: cfg.Model, timeout: timeout}, nil
}

// GenerateJSON sends prompt with a system instruction and returns the model's
// JSON text. Temperature is pinned to zero so repeated prompts rank the same.
func (c *Client) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	if c == nil || c.models == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "genai client not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	if strings.TrimSpace(system) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.models.GenerateContent(callCtx, c.model, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}, cfg)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate content")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "empty model response")
	}
	return stripFence(text), nil
}

// stripFence removes a markdown code fence some models wrap around JSON output.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
