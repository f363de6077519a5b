package notify

import (
	"context"
	"net/http"
	netmail "net/mail"
	"strings"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/fachebot/meeting-summarizer/internal/mail"
	"golang.org/x/net/proxy"
)

const (
	DefaultSubject = "Meeting Summary"
)

// Route 一条邮件发送通道
// Configured 为 true 时该通道被选中，Build 只在选中后调用
type Route struct {
	Name       string
	Configured func() bool
	Build      func() (mail.Transport, error)
}

// Notifier 按配置选择邮件通道发送会议纪要
// 通道之间互斥：第一个已配置的通道被选中后，失败不会切换到其他通道，
// 避免 SMTP 会话中途失败后再次投递造成重复邮件
type Notifier struct {
	routes       []Route
	unconfigured func() error
}

// NewNotifier 创建通知器，Resend 优先，其次 SMTP
func NewNotifier(resendCfg *config.Resend, smtpCfg *config.SMTP, httpClient *http.Client, dialer proxy.Dialer) *Notifier {
	return &Notifier{
		routes: []Route{
			{
				Name:       "Resend",
				Configured: resendCfg.Configured,
				Build: func() (mail.Transport, error) {
					return mail.NewResendTransport(resendCfg, httpClient)
				},
			},
			{
				Name:       "SMTP",
				Configured: func() bool { return len(smtpCfg.Missing()) == 0 },
				Build: func() (mail.Transport, error) {
					return mail.NewSMTPTransport(smtpCfg, dialer)
				},
			},
		},
		unconfigured: func() error {
			err := errs.Configuration("SMTP is not configured and no Resend API key provided (missing %s)",
				strings.Join(smtpCfg.Missing(), ", "))
			return errs.WithHint(err, "set RESEND_API_KEY, or set SMTP_HOST, SMTP_USER and SMTP_PASS")
		},
	}
}

// ParseRecipients 按逗号拆分收件人，去掉空白和空项
func ParseRecipients(s string) []string {
	recipients := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			recipients = append(recipients, item)
		}
	}
	return recipients
}

// normalizeRecipients 校验收件人地址并去重，保持原有顺序
func normalizeRecipients(recipients []string) ([]string, error) {
	seen := make(map[string]struct{}, len(recipients))
	result := make([]string, 0, len(recipients))
	for _, item := range recipients {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		addr, err := netmail.ParseAddress(item)
		if err != nil {
			return nil, errs.Validation("Invalid recipient address: %s", item)
		}

		key := strings.ToLower(addr.Address)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, addr.Address)
	}

	if len(result) == 0 {
		return nil, errs.Validation("No valid recipient addresses")
	}
	return result, nil
}

// Dispatch 发送邮件，返回通道给出的消息 ID
func (n *Notifier) Dispatch(ctx context.Context, recipients []string, subject, body string) (string, error) {
	to, err := normalizeRecipients(recipients)
	if err != nil {
		return "", err
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}

	var route *Route
	for i := range n.routes {
		if n.routes[i].Configured != nil && n.routes[i].Configured() {
			route = &n.routes[i]
			break
		}
	}
	if route == nil {
		err := n.unconfigured()
		logger.Warnf("[Notify] 没有可用的邮件通道, %v", err)
		return "", err
	}

	transport, err := route.Build()
	if err != nil {
		logger.Errorf("[Notify] 创建邮件通道失败, route: %s, %v", route.Name, err)
		return "", err
	}

	id, err := transport.Send(ctx, mail.Message{
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		logger.Errorf("[Notify] 发送邮件失败, route: %s, kind: %s, %v", route.Name, errs.Kind(err), err)
		return "", err
	}

	logger.Infof("[Notify] 邮件已发送, route: %s, recipients: %d, id: %s", route.Name, len(to), id)
	return id, nil
}
