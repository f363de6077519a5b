package llm

import (
	"context"
	"strings"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"google.golang.org/genai"
)

// contentGenerator 对应 genai 的 Models 服务，便于测试
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient 调用 Gemini API
type GeminiClient struct {
	model   string
	options Options
	models  contentGenerator
}

// NewGeminiClient 创建 Gemini 客户端，缺少 API Key 时返回配置错误
func NewGeminiClient(ctx context.Context, cfg *config.LLMProvider, options Options) (*GeminiClient, error) {
	if !cfg.Configured() {
		return nil, errs.WithHint(errs.Configuration("Missing GEMINI_API_KEY"),
			"set GEMINI_API_KEY or LLM.Gemini.APIKey")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: options.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errs.ProviderCall(err, "Gemini client init failed")
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}

	return &GeminiClient{
		model:   model,
		options: options,
		models:  client.Models,
	}, nil
}

func (c *GeminiClient) Name() string {
	return "Gemini"
}

// Summarize 执行一次总结请求，多个 part 的文本按顺序拼接
func (c *GeminiClient) Summarize(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := withTimeout(ctx, c.options.Timeout)
	defer cancel()

	generateConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       genai.Ptr(c.options.Temperature),
	}
	if c.options.MaxTokens > 0 {
		generateConfig.MaxOutputTokens = int32(c.options.MaxTokens)
	}

	logger.Debugf("[LLM] 调用 %s, model: %s", c.Name(), c.model)
	result, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt.User), generateConfig)
	if err != nil {
		return "", errs.ProviderCall(err, "Gemini request failed")
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errs.EmptyResult("Empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", errs.EmptyResult("Empty response from Gemini")
	}
	return content, nil
}
