package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/fachebot/meeting-summarizer/internal/svc"
	"golang.org/x/sync/errgroup"
)

type summarizerService interface {
	Summarize(ctx context.Context, transcript, instruction string) (string, error)
}

type mailDispatcher interface {
	Dispatch(ctx context.Context, recipients []string, subject, body string) (string, error)
}

// Server 对外提供 HTTP 接口
type Server struct {
	config     config.Server
	summarizer summarizerService
	notifier   mailDispatcher
}

func NewServer(svcCtx *svc.ServiceContext) *Server {
	return newServer(svcCtx.Config.Server, svcCtx.Summarizer, svcCtx.Notifier)
}

func newServer(c config.Server, summarizer summarizerService, notifier mailDispatcher) *Server {
	return &Server{
		config:     c,
		summarizer: summarizer,
		notifier:   notifier,
	}
}

// Start 启动 HTTP 服务，ctx 取消后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	// 摘要调用可能较慢，写超时留出模型调用的时间
	srv := &http.Server{
		Handler:           s.routes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		ErrorLog:          log.New(logger.Writer(), "", 0),
	}

	g.Go(func() error {
		logger.Infof("[Server] HTTP 服务已启动, addr: %s", listener.Addr())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Infof("[Server] 正在关闭 HTTP 服务...")
		timeout := time.Duration(s.config.ShutdownTimeout) * time.Second
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Infof("[Server] HTTP 服务已停止")
	return nil
}
