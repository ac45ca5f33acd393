package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

// Config carries the LLM credentials and limits.
type Config struct {
	OpenAIKey      string
	GeminiKey      string
	GeminiModel    string
	RequestsPerMin int
	MaxTokens      int
}

func LoadConfig() *Config {
	return &Config{
		OpenAIKey:      env.GetEnv("OPENAI_API_KEY", ""),
		GeminiKey:      env.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:    env.GetEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		RequestsPerMin: env.GetEnvInt("LLM_REQUESTS_PER_MINUTE", 60),
		MaxTokens:      env.GetEnvInt("LLM_MAX_TOKENS", 512),
	}
}

func (c *Config) limiter() *rate.Limiter {
	per := c.RequestsPerMin
	if per <= 0 {
		per = 60
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(per)), 5)
}

// NewChatModel maps a form model name to a backend.
func NewChatModel(ctx context.Context, cfg *Config, model string) (ChatModel, error) {
	switch model {
	case ModelGPT3:
		return NewOpenAIChat(cfg, openai.GPT3Dot5Turbo)
	case ModelGPT4:
		return NewOpenAIChat(cfg, openai.GPT4)
	case ModelGemini:
		return NewGeminiChat(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
}

type OpenAIChat struct {
	client    *openai.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

func NewOpenAIChat(cfg *Config, model string) (*OpenAIChat, error) {
	if cfg.OpenAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	return &OpenAIChat{
		client:    openai.NewClient(cfg.OpenAIKey),
		model:     model,
		maxTokens: cfg.MaxTokens,
		limiter:   cfg.limiter(),
	}, nil
}

func (o *OpenAIChat) Complete(ctx context.Context, system, user string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		MaxTokens:   o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type GeminiChat struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

func NewGeminiChat(ctx context.Context, cfg *Config) (*GeminiChat, error) {
	if cfg.GeminiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiChat{client: client, model: cfg.GeminiModel, limiter: cfg.limiter()}, nil
}

func (g *GeminiChat) Complete(ctx context.Context, system, user string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

func (g *GeminiChat) Close() error {
	return g.client.Close()
}
