package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message 一封纯文本邮件
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Transport 邮件发送通道
// Send 成功时返回服务商或本地生成的消息 ID
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

// sanitizeHeader 去掉换行，防止头部注入
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// envelopeAddress 从 "Name <addr>" 中取出地址
func envelopeAddress(from string) (string, error) {
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return "", fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	return addr.Address, nil
}

func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// formatMessage 生成 RFC 5322 格式的邮件，正文使用 quoted-printable 编码
func formatMessage(msg Message, messageID string, date time.Time) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", sanitizeHeader(msg.From))
	fmt.Fprintf(&buf, "To: %s\r\n", sanitizeHeader(strings.Join(msg.To, ", ")))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", sanitizeHeader(msg.Subject)))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")

	qp := quotedprintable.NewWriter(&buf)
	_, _ = qp.Write([]byte(body))
	_ = qp.Close()

	return buf.Bytes()
}
