package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// DefaultInstruction 用户未提供指令时使用
const DefaultInstruction = "Summarize in bullet points for executives"

// SystemPrompt 所有服务商共用的系统提示词
const SystemPrompt = "You are an expert meeting minutes assistant. Return a concise, structured Markdown summary. " +
	"Always honor the user's instruction. Where relevant, include headings like Overview, Key Points, " +
	"Action Items (with owners and due dates if present), Decisions, Risks, and Next Steps. " +
	"Keep it crisp and scannable."

// Prompt 一次总结请求的提示词
type Prompt struct {
	System string
	User   string
}

// BuildPrompt 构造提示词，指令和会议记录分别加上标签
func BuildPrompt(transcript, instruction string) Prompt {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	return Prompt{
		System: SystemPrompt,
		User:   "Instruction: " + instruction + "\n\nTranscript:\n" + transcript,
	}
}

// Provider 单个模型服务商的适配器
type Provider interface {
	Name() string
	Summarize(ctx context.Context, prompt Prompt) (string, error)
}

// Options 各适配器共用的生成参数
type Options struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration // 0 表示不限制
	HTTPClient  *http.Client  // nil 时使用 SDK 默认客户端
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
