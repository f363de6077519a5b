package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/fachebot/meeting-summarizer/internal/server"
	"github.com/fachebot/meeting-summarizer/internal/svc"

	"github.com/spf13/cobra"
)

var (
	configFile string
	svcCtx     *svc.ServiceContext
)

var rootCmd = &cobra.Command{
	Use:   "meeting-summarizer",
	Short: "Summarize meeting transcripts and email the minutes",
	Long: `meeting-summarizer turns a meeting transcript into structured Markdown minutes
using Groq (falling back to OpenAI, then Gemini) and emails them through
Resend or SMTP.

Examples:
  meeting-summarizer serve -f etc/config.yaml
  meeting-summarizer summarize --transcript meeting.txt
  meeting-summarizer send --to "a@x.com,b@y.com" --body minutes.md`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 读取配置文件
		c, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("读取配置文件失败, %w", err)
		}
		if err := logger.Setup(c.Log); err != nil {
			return fmt.Errorf("初始化日志失败, %w", err)
		}

		// 创建服务上下文
		svcCtx, err = svc.NewServiceContext(c)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if svcCtx != nil {
			svcCtx.Close()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 等待程序退出
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.NewServer(svcCtx).Start(ctx); err != nil {
		return err
	}
	logger.Infof("服务已停止")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", config.DefaultFile, "the config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(sendCmd)
}

// printError 输出错误信息及其提示
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, hint := range errs.GetAllHints(err) {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
