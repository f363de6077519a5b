package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fachebot/meeting-summarizer/internal/errs"
	"github.com/fachebot/meeting-summarizer/internal/notify"

	"github.com/spf13/cobra"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a transcript and print the Markdown minutes",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("transcript")
		instruction, _ := cmd.Flags().GetString("instruction")

		transcript, err := readInput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}

		summary, err := svcCtx.Summarizer.Summarize(cmd.Context(), transcript, instruction)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Email a summary to a comma-separated list of recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		subject, _ := cmd.Flags().GetString("subject")
		path, _ := cmd.Flags().GetString("body")

		recipients := notify.ParseRecipients(to)
		if len(recipients) == 0 {
			return errs.Validation("No valid recipient addresses")
		}

		body, err := readInput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if strings.TrimSpace(body) == "" {
			return errs.Validation("Body is required")
		}

		id, err := svcCtx.Notifier.Dispatch(cmd.Context(), recipients, subject, body)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent to %d recipient(s), id: %s\n", len(recipients), id)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().StringP("transcript", "t", "-", "transcript file, - for stdin")
	summarizeCmd.Flags().StringP("instruction", "i", "", "summary instruction")

	sendCmd.Flags().String("to", "", "comma-separated recipient addresses")
	sendCmd.Flags().StringP("subject", "s", notify.DefaultSubject, "email subject")
	sendCmd.Flags().StringP("body", "b", "-", "body file, - for stdin")
	_ = sendCmd.MarkFlagRequired("to")
}

// readInput 读取文件内容，path 为 - 时读取标准输入
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.Validation("cannot read %s: %v", path, err)
	}
	return string(data), nil
}
