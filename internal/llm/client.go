package llm

import (
	"context"
	"math"
	"strings"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// openAIClientInterface 定义 OpenAI 兼容客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client 通过 OpenAI 兼容接口调用 Groq
type Client struct {
	model        string
	options      Options
	openaiClient openAIClientInterface
}

// NewGroqClient 创建 Groq 客户端，缺少 API Key 时返回配置错误
func NewGroqClient(cfg *config.LLMProvider, options Options) (*Client, error) {
	if !cfg.Configured() {
		return nil, errs.WithHint(errs.Configuration("Missing GROQ_API_KEY"),
			"set GROQ_API_KEY or LLM.Groq.APIKey")
	}

	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	if openaiConfig.BaseURL == "" {
		openaiConfig.BaseURL = config.DefaultGroqBaseURL
	}
	if options.HTTPClient != nil {
		openaiConfig.HTTPClient = options.HTTPClient
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultGroqModel
	}

	return &Client{
		model:        model,
		options:      options,
		openaiClient: openai.NewClientWithConfig(openaiConfig),
	}, nil
}

func (c *Client) Name() string {
	return "Groq"
}

// Summarize 执行一次总结请求
func (c *Client) Summarize(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := withTimeout(ctx, c.options.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		Temperature: requestTemperature(c.options.Temperature),
		MaxTokens:   c.options.MaxTokens,
	}

	logger.Debugf("[LLM] 调用 %s, model: %s", c.Name(), c.model)
	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errs.ProviderCall(err, "Groq request failed")
	}

	if len(resp.Choices) == 0 {
		return "", errs.EmptyResult("Empty response from Groq")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errs.EmptyResult("Empty response from Groq")
	}
	return content, nil
}

// requestTemperature go-openai 会省略为 0 的 temperature，用最小正数代替
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
