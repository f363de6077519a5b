package svc

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/fachebot/meeting-summarizer/internal/notify"
	"github.com/fachebot/meeting-summarizer/internal/summarizer"

	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config         *config.Config
	Dialer         proxy.Dialer
	TransportProxy *http.Transport
	HTTPClient     *http.Client
	Summarizer     *summarizer.Summarizer
	Notifier       *notify.Notifier
}

func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	// 创建SOCKS5代理
	var dialer proxy.Dialer = &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	var transportProxy *http.Transport
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		socks5Dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("创建SOCKS5代理失败, %w", err)
		}
		dialer = socks5Dialer

		transportProxy = http.DefaultTransport.(*http.Transport).Clone()
		transportProxy.Proxy = nil
		if d, ok := socks5Dialer.(proxy.ContextDialer); ok {
			transportProxy.DialContext = d.DialContext
		} else {
			transportProxy.Dial = socks5Dialer.Dial //nolint:staticcheck
		}
		logger.Infof("[Svc] 已启用SOCKS5代理, %s", socks5Proxy)
	}

	httpClient := &http.Client{}
	if transportProxy != nil {
		httpClient.Transport = transportProxy
	}

	svcCtx := &ServiceContext{
		Config:         c,
		Dialer:         dialer,
		TransportProxy: transportProxy,
		HTTPClient:     httpClient,
		Summarizer:     summarizer.NewFromConfig(&c.LLM, httpClient),
		Notifier:       notify.NewNotifier(&c.Resend, &c.SMTP, httpClient, dialer),
	}
	return svcCtx, nil
}

func (svcCtx *ServiceContext) Close() {
	if svcCtx.TransportProxy != nil {
		svcCtx.TransportProxy.CloseIdleConnections()
	}
}
