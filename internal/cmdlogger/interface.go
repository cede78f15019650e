package cmdlogger

import (
	"log/slog"
)

// CmdLogger 是命令行使用的 slog 处理器
type CmdLogger interface {
	slog.Handler

	// SendEverythingToStderr 让所有级别的日志都写到 stderr
	SendEverythingToStderr()

	// HasErrored 报告是否输出过错误级别的日志
	HasErrored() bool

	// SetLevel 设置最低输出级别
	SetLevel(level slog.Leveler)
}

// SendEverythingToStderr 对默认处理器生效，--dump 输出到 stdout 时使用
func SendEverythingToStderr() {
	if l, ok := slog.Default().Handler().(CmdLogger); ok {
		l.SendEverythingToStderr()
	}
}

// HasErrored 查询默认处理器是否记录过错误
func HasErrored() bool {
	if l, ok := slog.Default().Handler().(CmdLogger); ok {
		return l.HasErrored()
	}

	return false
}

// SetLevel 设置默认处理器的级别
func SetLevel(level slog.Leveler) {
	if l, ok := slog.Default().Handler().(CmdLogger); ok {
		l.SetLevel(level)
	}
}
