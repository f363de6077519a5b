package llm

import (
	"context"
	"strings"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// chatCompletionService 对应 openai-go 的 Chat.Completions，便于测试
type chatCompletionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient 使用官方 SDK 调用 OpenAI Chat Completions
type OpenAIClient struct {
	model       string
	options     Options
	completions chatCompletionService
}

// NewOpenAIClient 创建 OpenAI 客户端，缺少 API Key 时返回配置错误
func NewOpenAIClient(cfg *config.LLMProvider, options Options) (*OpenAIClient, error) {
	if !cfg.Configured() {
		return nil, errs.WithHint(errs.Configuration("Missing OPENAI_API_KEY"),
			"set OPENAI_API_KEY or LLM.OpenAI.APIKey")
	}

	// SDK 默认会自动重试，这里关闭，失败直接交给调用链处理
	requestOptions := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.BaseURL))
	}
	if options.HTTPClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(options.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultOpenAIModel
	}

	client := openai.NewClient(requestOptions...)
	return &OpenAIClient{
		model:       model,
		options:     options,
		completions: &client.Chat.Completions,
	}, nil
}

func (c *OpenAIClient) Name() string {
	return "OpenAI"
}

// Summarize 执行一次总结请求
func (c *OpenAIClient) Summarize(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := withTimeout(ctx, c.options.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Temperature: openai.Float(float64(c.options.Temperature)),
	}
	if c.options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.options.MaxTokens))
	}

	logger.Debugf("[LLM] 调用 %s, model: %s", c.Name(), c.model)
	completion, err := c.completions.New(ctx, params)
	if err != nil {
		return "", errs.ProviderCall(err, "OpenAI request failed")
	}

	if completion == nil || len(completion.Choices) == 0 {
		return "", errs.EmptyResult("Empty response from OpenAI")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errs.EmptyResult("Empty response from OpenAI")
	}
	return content, nil
}
