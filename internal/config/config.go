package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile 默认配置文件路径，不存在时仅使用环境变量
const DefaultFile = "etc/config.yaml"

const (
	DefaultServerAddr      = ":8080"
	DefaultShutdownTimeout = 30

	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama3-70b-8192"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1200
	DefaultLLMTimeout  = 60

	DefaultResendFrom  = "Meeting Summarizer <onboarding@resend.dev>"
	DefaultSMTPPort    = 587
	DefaultSMTPFrom    = "Meeting Summarizer <no-reply@example.com>"
	DefaultSMTPTimeout = 30

	DefaultLogDir   = "logs"
	DefaultLogLevel = "info"
)

type Server struct {
	Addr            string `yaml:"Addr" env:"SERVER_ADDR"`
	ShutdownTimeout int    `yaml:"ShutdownTimeout" env:"SERVER_SHUTDOWN_TIMEOUT"` // 优雅关闭超时（秒）
}

type Sock5Proxy struct {
	Host   string `yaml:"Host" env:"SOCKS5_PROXY_HOST"`
	Port   int32  `yaml:"Port" env:"SOCKS5_PROXY_PORT"`
	Enable bool   `yaml:"Enable" env:"SOCKS5_PROXY_ENABLE"`
}

// LLMProvider 单个模型服务商的凭据
type LLMProvider struct {
	APIKey  string `yaml:"APIKey" env:"API_KEY"`
	Model   string `yaml:"Model" env:"MODEL"`
	BaseURL string `yaml:"BaseURL" env:"BASE_URL"` // 为空时使用 SDK 默认端点
}

// Configured 是否提供了 API Key
func (p *LLMProvider) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

type LLM struct {
	Groq        LLMProvider `yaml:"Groq" envPrefix:"GROQ_"`
	OpenAI      LLMProvider `yaml:"OpenAI" envPrefix:"OPENAI_"`
	Gemini      LLMProvider `yaml:"Gemini" envPrefix:"GEMINI_"`
	Temperature *float32    `yaml:"Temperature" env:"LLM_TEMPERATURE"` // 未设置时使用默认值，0 为有效值
	MaxTokens   int         `yaml:"MaxTokens" env:"LLM_MAX_TOKENS"`     // 输出 token 上限
	Timeout     int         `yaml:"Timeout" env:"LLM_TIMEOUT"`          // 单次调用超时（秒）
}

// TemperatureValue 返回采样温度，未配置时返回默认值
func (l *LLM) TemperatureValue() float32 {
	if l.Temperature == nil {
		return DefaultTemperature
	}
	return *l.Temperature
}

type Resend struct {
	APIKey string `yaml:"APIKey" env:"RESEND_API_KEY"`
	From   string `yaml:"From" env:"RESEND_FROM"`
}

// Configured 是否提供了 Resend API Key
func (r *Resend) Configured() bool {
	return strings.TrimSpace(r.APIKey) != ""
}

type SMTP struct {
	Host    string `yaml:"Host" env:"SMTP_HOST"`
	Port    int    `yaml:"Port" env:"SMTP_PORT"`
	Secure  bool   `yaml:"Secure" env:"SMTP_SECURE"` // true 时直接使用 TLS 连接
	User    string `yaml:"User" env:"SMTP_USER"`
	Pass    string `yaml:"Pass" env:"SMTP_PASS"`
	From    string `yaml:"From" env:"SMTP_FROM"`
	Timeout int    `yaml:"Timeout" env:"SMTP_TIMEOUT"` // 连接及发送超时（秒）
}

// Missing 返回缺失的必填项对应的环境变量名
func (s *SMTP) Missing() []string {
	var missing []string
	if strings.TrimSpace(s.Host) == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if strings.TrimSpace(s.User) == "" {
		missing = append(missing, "SMTP_USER")
	}
	if s.Pass == "" {
		missing = append(missing, "SMTP_PASS")
	}
	return missing
}

type Log struct {
	Dir   string `yaml:"Dir" env:"LOG_DIR"`
	Level string `yaml:"Level" env:"LOG_LEVEL"`
}

type Config struct {
	Server     Server     `yaml:"Server"`
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	LLM        LLM        `yaml:"LLM"`
	Resend     Resend     `yaml:"Resend"`
	SMTP       SMTP       `yaml:"SMTP"`
	Log        Log        `yaml:"Log"`
}

// Load 依次读取 YAML 配置文件、.env 文件和进程环境变量，后者覆盖前者
func Load(filename string) (*Config, error) {
	var c Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", filename, err)
			}
		case errors.Is(err, fs.ErrNotExist) && filename == DefaultFile:
			// 默认配置文件可以不存在
		default:
			return nil, err
		}
	}

	// .env 不覆盖已存在的环境变量
	_ = godotenv.Load()

	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.LLM.Groq.BaseURL == "" {
		c.LLM.Groq.BaseURL = DefaultGroqBaseURL
	}
	if c.LLM.Groq.Model == "" {
		c.LLM.Groq.Model = DefaultGroqModel
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = DefaultOpenAIModel
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = DefaultGeminiModel
	}
	if c.LLM.Temperature == nil {
		temperature := float32(DefaultTemperature)
		c.LLM.Temperature = &temperature
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultLLMTimeout
	}

	if c.Resend.From == "" {
		c.Resend.From = DefaultResendFrom
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = DefaultSMTPPort
	}
	if c.SMTP.From == "" {
		c.SMTP.From = DefaultSMTPFrom
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = DefaultSMTPTimeout
	}

	if c.Log.Dir == "" {
		c.Log.Dir = DefaultLogDir
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate 验证配置的有效性
// 服务商凭据缺失不在此处报错，由调用链在运行时处理
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("Server.Addr must not be empty")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("Server.ShutdownTimeout must be >= 0")
	}

	if c.Sock5Proxy.Enable {
		if c.Sock5Proxy.Host == "" {
			return fmt.Errorf("Sock5Proxy.Host must not be empty when the proxy is enabled")
		}
		if c.Sock5Proxy.Port <= 0 || c.Sock5Proxy.Port > 65535 {
			return fmt.Errorf("Sock5Proxy.Port must be between 1 and 65535")
		}
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("LLM.Temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM.MaxTokens must be > 0")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("LLM.Timeout must be >= 0")
	}

	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP.Port must be between 1 and 65535")
	}
	if c.SMTP.Timeout < 0 {
		return fmt.Errorf("SMTP.Timeout must be >= 0")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("Log.Level must be one of 'debug', 'info', 'warn' or 'error'")
	}

	return nil
}
