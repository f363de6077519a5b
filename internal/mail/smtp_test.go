package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSMTPConfig() *config.SMTP {
	return &config.SMTP{
		Host:    "127.0.0.1",
		Port:    2525,
		User:    "bot",
		Pass:    "secret",
		From:    "Meeting Summarizer <no-reply@example.com>",
		Timeout: 5,
	}
}

func captureSend(t *testing.T, tr *SMTPTransport) *capturedSend {
	t.Helper()
	captured := &capturedSend{}
	tr.sendFn = func(ctx context.Context, from string, to []string, raw []byte) error {
		captured.from = from
		captured.to = to
		captured.raw = string(raw)
		return nil
	}
	return captured
}

type capturedSend struct {
	from string
	to   []string
	raw  string
}

func TestFormatMessageWithPlainText(t *testing.T) {
	msg := Message{
		From:    "Meeting Summarizer <no-reply@example.com>",
		To:      []string{"user@example.org"},
		Subject: "Meeting Summary",
		Body:    "This is a test email.",
	}
	date := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
	result := string(formatMessage(msg, "<id@example.com>", date))

	cases := []struct {
		name string
		want string
	}{
		{"from header", "From: Meeting Summarizer <no-reply@example.com>\r\n"},
		{"to header", "To: user@example.org\r\n"},
		{"subject header", "Subject: Meeting Summary\r\n"},
		{"date header", "Date: Sat, 01 Feb 2025 09:30:00 +0000\r\n"},
		{"message id header", "Message-ID: <id@example.com>\r\n"},
		{"mime header", "MIME-Version: 1.0\r\n"},
		{"content type header", "Content-Type: text/plain; charset=UTF-8\r\n"},
		{"body", "\r\n\r\nThis is a test email."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, result, tc.want)
		})
	}
}

func TestFormatMessageWithMultipleRecipients(t *testing.T) {
	msg := Message{From: "a@example.com", To: []string{"a@example.org", "b@example.org"}}
	result := string(formatMessage(msg, "<id@example.com>", time.Now()))
	assert.Contains(t, result, "To: a@example.org, b@example.org\r\n")
}

func TestFormatMessageStripsHeaderInjection(t *testing.T) {
	msg := Message{
		From:    "a@example.com",
		To:      []string{"a@example.org"},
		Subject: "Summary\r\nBcc: attacker@example.com",
	}
	result := string(formatMessage(msg, "<id@example.com>", time.Now()))
	assert.NotContains(t, result, "\r\nBcc:")
	assert.Contains(t, result, "Subject: Summary Bcc: attacker@example.com\r\n")
}

func TestFormatMessageEncodesNonASCIISubject(t *testing.T) {
	msg := Message{From: "a@example.com", To: []string{"a@example.org"}, Subject: "会议纪要"}
	result := string(formatMessage(msg, "<id@example.com>", time.Now()))
	assert.Contains(t, result, "Subject: =?UTF-8?q?")
}

func TestNewMessageID(t *testing.T) {
	id := newMessageID("no-reply@example.com")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@example.com>"))
	assert.NotEqual(t, id, newMessageID("no-reply@example.com"))
	assert.True(t, strings.HasSuffix(newMessageID("nobody"), "@localhost>"))
}

func TestNewSMTPTransport_MissingFields(t *testing.T) {
	tr, err := NewSMTPTransport(&config.SMTP{Host: "smtp.example.com"}, nil)
	assert.Nil(t, tr)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrConfiguration))
	assert.Contains(t, err.Error(), "SMTP_USER")
	assert.Contains(t, err.Error(), "SMTP_PASS")
	assert.NotContains(t, err.Error(), "SMTP_HOST")
}

func TestSMTPSend_UsesConfiguredSender(t *testing.T) {
	tr, err := NewSMTPTransport(testSMTPConfig(), nil)
	require.NoError(t, err)
	captured := captureSend(t, tr)

	id, err := tr.Send(context.Background(), Message{
		To:      []string{"a@x.com", "b@y.com"},
		Subject: "Meeting Summary",
		Body:    "hello",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(id, "@example.com>"))
	assert.Equal(t, "no-reply@example.com", captured.from)
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, captured.to)
	assert.Contains(t, captured.raw, "Message-ID: "+id)
	assert.Contains(t, captured.raw, "hello")
}

func TestSMTPSend_Failure(t *testing.T) {
	tr, err := NewSMTPTransport(testSMTPConfig(), nil)
	require.NoError(t, err)
	tr.sendFn = func(ctx context.Context, from string, to []string, raw []byte) error {
		return errors.New("535 authentication failed")
	}

	_, err = tr.Send(context.Background(), Message{To: []string{"a@x.com"}, Body: "hello"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrProviderCall))
	assert.Equal(t, "SMTP send failed: 535 authentication failed", err.Error())
}

func TestSMTPSend_InvalidSender(t *testing.T) {
	cfg := testSMTPConfig()
	cfg.From = "not an address"
	tr, err := NewSMTPTransport(cfg, nil)
	require.NoError(t, err)
	captureSend(t, tr)

	_, err = tr.Send(context.Background(), Message{To: []string{"a@x.com"}, Body: "hello"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrConfiguration))
}

// fakeSMTPServer 最小化的 SMTP 服务端，只支持 EHLO/AUTH PLAIN/AUTH LOGIN/MAIL/RCPT/DATA/QUIT
type fakeSMTPServer struct {
	listener net.Listener
	reject   string
	mechs    []string

	mu       sync.Mutex
	auth     bool
	authMech string
	user     string
	pass     string
	from     string
	rcpt     []string
	data     string
}

// startFakeSMTPServer 启动服务端，mechs 为 EHLO 中声明的认证机制，默认只有 PLAIN
func startFakeSMTPServer(t *testing.T, reject string, mechs ...string) *fakeSMTPServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	if len(mechs) == 0 {
		mechs = []string{"PLAIN"}
	}
	s := &fakeSMTPServer{listener: l, reject: reject, mechs: mechs}
	t.Cleanup(func() { l.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO", "HELO":
			_ = tp.PrintfLine("250-localhost")
			_ = tp.PrintfLine("250 AUTH %s", strings.Join(s.mechs, " "))
		case "AUTH":
			if !s.authenticate(tp, strings.Fields(line)[1:]) {
				return
			}
		case "MAIL":
			s.mu.Lock()
			s.from = line
			s.mu.Unlock()
			_ = tp.PrintfLine("250 OK")
		case "RCPT":
			if s.reject != "" && strings.Contains(line, s.reject) {
				_ = tp.PrintfLine("550 mailbox unavailable")
				continue
			}
			s.mu.Lock()
			s.rcpt = append(s.rcpt, line)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(data)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 OK queued")
		case "QUIT":
			_ = tp.PrintfLine("221 Bye")
			return
		default:
			_ = tp.PrintfLine("502 command not implemented")
		}
	}
}

// authenticate 处理一次 AUTH 命令，连接出错时返回 false
func (s *fakeSMTPServer) authenticate(tp *textproto.Conn, args []string) bool {
	if len(args) == 0 || !slices.Contains(s.mechs, strings.ToUpper(args[0])) {
		return tp.PrintfLine("504 5.5.4 Unrecognized authentication type") == nil
	}

	var user, pass string
	switch mech := strings.ToUpper(args[0]); mech {
	case "PLAIN":
		if len(args) < 2 {
			return tp.PrintfLine("501 missing initial response") == nil
		}
		decoded, err := base64.StdEncoding.DecodeString(args[1])
		if err != nil {
			return tp.PrintfLine("501 invalid base64") == nil
		}
		parts := strings.Split(string(decoded), "\x00")
		if len(parts) == 3 {
			user, pass = parts[1], parts[2]
		}
	case "LOGIN":
		var ok bool
		if user, ok = challenge(tp, "Username:"); !ok {
			return false
		}
		if pass, ok = challenge(tp, "Password:"); !ok {
			return false
		}
	}

	s.mu.Lock()
	s.auth = true
	s.authMech = strings.ToUpper(args[0])
	s.user, s.pass = user, pass
	s.mu.Unlock()
	return tp.PrintfLine("235 2.7.0 Authentication successful") == nil
}

func challenge(tp *textproto.Conn, prompt string) (string, bool) {
	if err := tp.PrintfLine("334 %s", base64.StdEncoding.EncodeToString([]byte(prompt))); err != nil {
		return "", false
	}
	line, err := tp.ReadLine()
	if err != nil {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// fixedDialer 无论目标地址是什么都连接到同一个地址
type fixedDialer struct {
	addr string
}

func (d fixedDialer) Dial(network, _ string) (net.Conn, error) {
	return net.Dial(network, d.addr)
}

func TestSMTPDeliver_FakeServer(t *testing.T) {
	server := startFakeSMTPServer(t, "")
	cfg := testSMTPConfig()
	cfg.Port = server.port()

	tr, err := NewSMTPTransport(cfg, nil)
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), Message{
		To:      []string{"a@x.com", "b@y.com"},
		Subject: "Meeting Summary",
		Body:    "## Overview\nShip by Friday.",
	})
	require.NoError(t, err)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.True(t, server.auth)
	assert.Equal(t, "PLAIN", server.authMech)
	assert.Equal(t, "bot", server.user)
	assert.Equal(t, "secret", server.pass)
	assert.Contains(t, server.from, "<no-reply@example.com>")
	assert.Len(t, server.rcpt, 2)
	assert.Contains(t, server.data, "Subject: Meeting Summary")
	assert.Contains(t, server.data, "Ship by Friday.")
}

func TestSMTPDeliver_LoginOnlyServer(t *testing.T) {
	server := startFakeSMTPServer(t, "", "LOGIN")
	cfg := testSMTPConfig()
	cfg.Port = server.port()

	tr, err := NewSMTPTransport(cfg, nil)
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), Message{To: []string{"a@x.com"}, Subject: "Meeting Summary", Body: "hello"})
	require.NoError(t, err)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, "LOGIN", server.authMech)
	assert.Equal(t, "bot", server.user)
	assert.Equal(t, "secret", server.pass)
	assert.Contains(t, server.data, "hello")
}

func TestSMTPDeliver_PrefersPlainWhenBothOffered(t *testing.T) {
	server := startFakeSMTPServer(t, "", "LOGIN", "PLAIN")
	cfg := testSMTPConfig()
	cfg.Port = server.port()

	tr, err := NewSMTPTransport(cfg, nil)
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), Message{To: []string{"a@x.com"}, Body: "hello"})
	require.NoError(t, err)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, "PLAIN", server.authMech)
}

func TestSMTPDeliver_RefusesCredentialsWithoutTLS(t *testing.T) {
	server := startFakeSMTPServer(t, "")
	cfg := testSMTPConfig()
	cfg.Host = "smtp.example.com"
	cfg.Port = server.port()

	tr, err := NewSMTPTransport(cfg, fixedDialer{addr: server.listener.Addr().String()})
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), Message{To: []string{"a@x.com"}, Body: "hello"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrProviderCall))
	assert.Contains(t, err.Error(), "unencrypted connection")
	assert.Contains(t, errs.GetAllHints(err), "set SMTP_SECURE=true or use an SMTP server that offers STARTTLS")

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.False(t, server.auth, "未加密的连接上不应发送凭据")
	assert.Empty(t, server.data)
}

func TestLoginAuth(t *testing.T) {
	a := &loginAuth{username: "bot", password: "secret", host: "smtp.example.com"}

	_, _, err := a.Start(&smtp.ServerInfo{Name: "smtp.example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unencrypted connection")

	mech, initial, err := a.Start(&smtp.ServerInfo{Name: "smtp.example.com", TLS: true})
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", mech)
	assert.Nil(t, initial)

	resp, err := a.Next([]byte("Username:"), true)
	require.NoError(t, err)
	assert.Equal(t, "bot", string(resp))

	resp, err = a.Next([]byte("Password:"), true)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(resp))

	_, err = a.Next([]byte("Realm:"), true)
	assert.Error(t, err)

	resp, err = a.Next(nil, false)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestSMTPDeliver_RejectedRecipientFailsWholeSend(t *testing.T) {
	server := startFakeSMTPServer(t, "b@y.com")
	cfg := testSMTPConfig()
	cfg.Port = server.port()

	tr, err := NewSMTPTransport(cfg, nil)
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), Message{To: []string{"a@x.com", "b@y.com"}, Body: "hello"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrProviderCall))
	assert.Contains(t, err.Error(), "b@y.com")

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Empty(t, server.data, "收件人被拒绝时不应投递正文")
}

func TestSMTPDeliver_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	cfg := testSMTPConfig()
	cfg.Port = port
	tr, err := NewSMTPTransport(cfg, nil)
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), Message{To: []string{"a@x.com"}, Body: "hello"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrProviderCall))
	assert.Contains(t, err.Error(), "dial 127.0.0.1:"+strconv.Itoa(port))
}
