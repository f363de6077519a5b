package mail

import (
	"context"
	"net/http"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/resend/resend-go/v2"
)

// emailSender 对应 resend 的 Emails 服务，便于测试
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendTransport 通过 Resend API 发送邮件
type ResendTransport struct {
	from   string
	emails emailSender
}

// NewResendTransport 创建 Resend 通道，缺少 API Key 时返回配置错误
func NewResendTransport(cfg *config.Resend, httpClient *http.Client) (*ResendTransport, error) {
	if !cfg.Configured() {
		return nil, errs.Configuration("Missing RESEND_API_KEY")
	}

	var client *resend.Client
	if httpClient != nil {
		client = resend.NewCustomClient(httpClient, cfg.APIKey)
	} else {
		client = resend.NewClient(cfg.APIKey)
	}

	from := cfg.From
	if from == "" {
		from = config.DefaultResendFrom
	}
	return &ResendTransport{from: from, emails: client.Emails}, nil
}

func (t *ResendTransport) Name() string {
	return "Resend"
}

// Send 发送邮件，返回 Resend 的邮件 ID
func (t *ResendTransport) Send(ctx context.Context, msg Message) (string, error) {
	from := msg.From
	if from == "" {
		from = t.from
	}

	resp, err := t.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: sanitizeHeader(msg.Subject),
		Text:    msg.Body,
	})
	if err != nil {
		return "", errs.ProviderCall(err, "Resend send failed")
	}

	var id string
	if resp != nil {
		id = resp.Id
	}
	logger.Infof("[Mail] Resend 已发送邮件, recipients: %d, id: %s", len(msg.To), id)
	return id, nil
}
