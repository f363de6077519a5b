package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"golang.org/x/net/proxy"
)

// SMTPTransport 通过 SMTP 服务器发送邮件，每次发送建立一个新连接
type SMTPTransport struct {
	cfg    config.SMTP
	dialer proxy.Dialer
	sendFn func(ctx context.Context, from string, to []string, raw []byte) error
}

// NewSMTPTransport 创建 SMTP 通道，dialer 为 nil 时直连
func NewSMTPTransport(cfg *config.SMTP, dialer proxy.Dialer) (*SMTPTransport, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, errs.Configuration("SMTP is not configured (missing %s)", strings.Join(missing, ", "))
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	t := &SMTPTransport{
		cfg:    *cfg,
		dialer: dialer,
	}
	t.sendFn = t.deliver
	return t, nil
}

func (t *SMTPTransport) Name() string {
	return "SMTP"
}

// Send 发送邮件，返回生成的 Message-ID
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	if msg.From == "" {
		msg.From = t.cfg.From
	}
	from, err := envelopeAddress(msg.From)
	if err != nil {
		return "", errs.Configuration("%v", err)
	}

	messageID := newMessageID(from)
	raw := formatMessage(msg, messageID, time.Now())

	if err := t.sendFn(ctx, from, msg.To, raw); err != nil {
		return "", errs.ProviderCall(err, "SMTP send failed")
	}

	logger.Infof("[Mail] SMTP 已发送邮件, host: %s, recipients: %d, id: %s", t.cfg.Host, len(msg.To), messageID)
	return messageID, nil
}

func (t *SMTPTransport) dial(ctx context.Context, addr string) (net.Conn, error) {
	if d, ok := t.dialer.(proxy.ContextDialer); ok {
		return d.DialContext(ctx, "tcp", addr)
	}
	return t.dialer.Dial("tcp", addr)
}

// deliver 完成一次 SMTP 会话，所有收件人在同一个事务中投递
func (t *SMTPTransport) deliver(ctx context.Context, from string, to []string, raw []byte) error {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.Timeout)*time.Second)
		defer cancel()
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := &tls.Config{ServerName: t.cfg.Host}
	if t.cfg.Secure {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer c.Close()

	if !t.cfg.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if _, ok := c.TLSConnectionState(); !ok && !isLocalhost(t.cfg.Host) {
		c.Quit()
		return errs.WithHint(
			fmt.Errorf("auth: refusing to send credentials over an unencrypted connection to %s", t.cfg.Host),
			"set SMTP_SECURE=true or use an SMTP server that offers STARTTLS",
		)
	}
	if err := c.Auth(t.auth(c)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return c.Quit()
}

// auth 按服务端在 EHLO 中声明的机制选择认证方式，优先 PLAIN，其次 LOGIN
func (t *SMTPTransport) auth(c *smtp.Client) smtp.Auth {
	if ok, mechs := c.Extension("AUTH"); ok {
		supported := strings.Fields(strings.ToUpper(mechs))
		if !slices.Contains(supported, "PLAIN") && slices.Contains(supported, "LOGIN") {
			return &loginAuth{username: t.cfg.User, password: t.cfg.Pass, host: t.cfg.Host}
		}
	}
	return smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
}

// loginAuth 实现 AUTH LOGIN，部分服务商（如 Office 365）只支持这种方式
type loginAuth struct {
	username string
	password string
	host     string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, errors.New("unencrypted connection")
	}
	if server.Name != a.host {
		return "", nil, errors.New("wrong host name")
	}
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}

	challenge := strings.ToLower(strings.TrimSpace(string(fromServer)))
	switch {
	case strings.HasPrefix(challenge, "user"):
		return []byte(a.username), nil
	case strings.HasPrefix(challenge, "pass"):
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected LOGIN challenge %q", fromServer)
	}
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
