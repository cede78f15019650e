// Package cmdlogger 提供命令行使用的 slog 处理器，以及按 printf 格式写默认 logger 的函数。
package cmdlogger

import (
	"context"
	"fmt"
	"log/slog"
)

// logf 只在级别启用时格式化消息。并行处理类时每个类都会记调试日志。
func logf(level slog.Level, format string, args []any) {
	ctx := context.Background()
	logger := slog.Default()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) { logf(slog.LevelDebug, format, args) }

// Infof 记录进度，例如流程的各个阶段
func Infof(format string, args ...any) { logf(slog.LevelInfo, format, args) }

func Warnf(format string, args ...any) { logf(slog.LevelWarn, format, args) }

// Errorf 写到 stderr，并让 HasErrored 返回 true
func Errorf(format string, args ...any) { logf(slog.LevelError, format, args) }
