package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fachebot/meeting-summarizer/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "meeting-summarizer.log"

var std = newConsoleLogger()

func newConsoleLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.DebugLevel)
	return l
}

// fileHook 把日志以 JSON 格式写入轮转文件
type fileHook struct {
	mu        sync.Mutex
	writer    io.WriteCloser
	formatter logrus.Formatter
	levels    []logrus.Level
}

func (h *fileHook) Levels() []logrus.Level {
	return h.levels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}

// Setup 设置日志级别，并把日志同时写入 <Dir>/meeting-summarizer.log
func Setup(c config.Log) error {
	level, err := logrus.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return err
	}

	// 使用lumberjack进行日志轮转
	hook := &fileHook{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(c.Dir, logFileName),
			MaxSize:    10,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		formatter: &logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"},
		levels:    logrus.AllLevels,
	}

	hooks := make(logrus.LevelHooks)
	hooks.Add(hook)

	std.SetLevel(level)
	std.ReplaceHooks(hooks)
	return nil
}

// Writer 返回错误级别的 io.Writer，供标准库 log.Logger 使用
func Writer() *io.PipeWriter {
	return std.WriterLevel(logrus.ErrorLevel)
}

func Debugf(format string, args ...any) {
	std.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	std.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	std.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	std.Errorf(format, args...)
}
