package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	globalLogger = slog.Default()
	once         sync.Once
)

type Config struct {
	Level   string   `json:"level" yaml:"level"`     // none/debug/info/warn/error
	Outputs []string `json:"outputs" yaml:"outputs"` // stdout/stderr/file path
}

// New 按配置创建logger，返回的 closer 关闭打开的日志文件
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch cfg.Level {
	case "none":
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nopCloser{}, nil
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unexpected log level: %q", cfg.Level)
	}

	// 创建多个输出writer
	var (
		writers []io.Writer
		files   fileCloser
	)
	for _, output := range cfg.Outputs {
		switch output {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			// 确保目录存在
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				files.Close()
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}

			// 打开或创建日志文件
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				files.Close()
				return nil, nil, fmt.Errorf("failed to open log file: %w", err)
			}
			writers = append(writers, file)
			files = append(files, file)
		}
	}

	// 如果没有指定输出，默认使用stderr，stdout 留给解码输出
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	}))
	return logger, files, nil
}

// Init 初始化全局logger，只生效一次
func Init(cfg Config) (io.Closer, error) {
	var (
		closer io.Closer = nopCloser{}
		err    error
	)
	once.Do(func() {
		var l *slog.Logger
		l, closer, err = New(cfg)
		if err != nil {
			closer = nopCloser{}
			return
		}
		globalLogger = l
	})
	return closer, err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fileCloser []*os.File

func (fc fileCloser) Close() error {
	var errs []error
	for _, f := range fc {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

func Debug(msg string, args ...any) {
	globalLogger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	globalLogger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	globalLogger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	globalLogger.Error(msg, args...)
}

func Logger() *slog.Logger {
	return globalLogger
}
