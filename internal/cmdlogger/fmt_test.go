package cmdlogger_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"jvm-obfuscator/internal/cmdlogger"
)

type countingStringer struct{ calls *int }

func (c countingStringer) String() string {
	*c.calls++
	return "formatted"
}

// 替换默认 logger，不并行执行
func TestFormatHelpers_UseDefaultHandler(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var stdout, stderr bytes.Buffer
	h := cmdlogger.New(&stdout, &stderr)
	slog.SetDefault(slog.New(h))

	calls := 0
	cmdlogger.Debugf("debug %v", countingStringer{&calls})
	cmdlogger.Infof("阶段 %d/%d", 1, 7)
	cmdlogger.Warnf("重复的类 %s 已忽略", "C0")
	cmdlogger.Errorf("失败: %v", fmt.Errorf("boom"))

	if calls != 0 {
		t.Errorf("disabled debug message was formatted %d times", calls)
	}
	if got, want := stdout.String(), "阶段 1/7\n重复的类 C0 已忽略\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if got, want := stderr.String(), "失败: boom\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
	if !cmdlogger.HasErrored() {
		t.Error("HasErrored() = false after Errorf")
	}
}
