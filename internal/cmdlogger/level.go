package cmdlogger

import (
	"fmt"
	"log/slog"
	"strings"
)

var levels = []string{"error", "warn", "info", "debug"}

// Levels 返回 --verbosity 可接受的取值
func Levels() []string {
	return levels
}

// ParseLevel 解析日志级别名称
func ParseLevel(text string) (slog.Level, error) {
	switch text {
	case "error":
		return slog.LevelError, nil
	case "warn":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return slog.LevelInfo, fmt.Errorf("无效的日志级别 \"%s\"，可选值: %s", text, strings.Join(Levels(), ", "))
	}
}
