package summarizer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/llm"
	"github.com/fachebot/meeting-summarizer/internal/logger"
)

// Step 调用链中的一个服务商
// Configured 为凭据检查，Build 仅在轮到该服务商时才会被调用
type Step struct {
	Name       string
	Configured func() bool
	Build      func(ctx context.Context) (llm.Provider, error)
}

// Summarizer 按固定顺序尝试服务商，直到有一个返回结果
//
// 第一个服务商总是会被尝试（缺少凭据也算一次失败），之后的服务商只有在凭据存在时才会尝试。
// 全部失败时返回第一个服务商的错误，后续服务商的错误只记录日志。
type Summarizer struct {
	steps []Step
}

func NewSummarizer(steps ...Step) *Summarizer {
	return &Summarizer{steps: steps}
}

// NewFromConfig 按 Groq → OpenAI → Gemini 的顺序构造调用链
func NewFromConfig(c *config.LLM, httpClient *http.Client) *Summarizer {
	options := llm.Options{
		Temperature: c.TemperatureValue(),
		MaxTokens:   c.MaxTokens,
		Timeout:     time.Duration(c.Timeout) * time.Second,
		HTTPClient:  httpClient,
	}

	return NewSummarizer(
		Step{
			Name:       "Groq",
			Configured: c.Groq.Configured,
			Build: func(ctx context.Context) (llm.Provider, error) {
				client, err := llm.NewGroqClient(&c.Groq, options)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
		Step{
			Name:       "OpenAI",
			Configured: c.OpenAI.Configured,
			Build: func(ctx context.Context) (llm.Provider, error) {
				client, err := llm.NewOpenAIClient(&c.OpenAI, options)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
		Step{
			Name:       "Gemini",
			Configured: c.Gemini.Configured,
			Build: func(ctx context.Context) (llm.Provider, error) {
				client, err := llm.NewGeminiClient(ctx, &c.Gemini, options)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
	)
}

// Summarize 生成会议纪要，返回 Markdown 文本
func (s *Summarizer) Summarize(ctx context.Context, transcript, instruction string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errs.Validation("Transcript is required")
	}
	if len(s.steps) == 0 {
		return "", errs.Configuration("No summarization provider configured")
	}

	prompt := llm.BuildPrompt(transcript, instruction)

	var primaryErr error
	for i, step := range s.steps {
		if i > 0 {
			if step.Configured != nil && !step.Configured() {
				logger.Debugf("[Summarizer] %s 未配置, 跳过", step.Name)
				continue
			}
			if ctx.Err() != nil {
				logger.Warnf("[Summarizer] 请求已取消, 不再尝试 %s", step.Name)
				break
			}
		}

		start := time.Now()
		text, err := s.attempt(ctx, step, prompt)
		if err == nil {
			logger.Infof("[Summarizer] %s 完成总结, 耗时 %s", step.Name, time.Since(start).Round(time.Millisecond))
			return text, nil
		}

		if i == 0 {
			primaryErr = err
			logger.Warnf("[Summarizer] %s 总结失败(%s): %v", step.Name, errs.Kind(err), err)
		} else {
			logger.Warnf("[Summarizer] 备用服务 %s 总结失败(%s), 已忽略: %v", step.Name, errs.Kind(err), err)
		}
	}

	return "", primaryErr
}

func (s *Summarizer) attempt(ctx context.Context, step Step, prompt llm.Prompt) (string, error) {
	provider, err := step.Build(ctx)
	if err != nil {
		return "", err
	}

	text, err := provider.Summarize(ctx, prompt)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.EmptyResult("Empty response from %s", provider.Name())
	}
	return text, nil
}
