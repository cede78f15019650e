package cmdlogger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"jvm-obfuscator/internal/cmdlogger"
)

func TestHandler_SplitsStreamsAndTracksErrors(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	h := cmdlogger.New(&stdout, &stderr)
	logger := slog.New(h)

	logger.Debug("hidden")
	logger.Info("阶段 1/7")
	if h.HasErrored() {
		t.Fatal("HasErrored() = true before any error")
	}
	logger.Error("boom")

	if got := stdout.String(); got != "阶段 1/7\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := stderr.String(); got != "boom\n" {
		t.Errorf("stderr = %q", got)
	}
	if !h.HasErrored() {
		t.Error("HasErrored() = false after an error")
	}
}

func TestHandler_SetLevelAndEverythingToStderr(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	h := cmdlogger.New(&stdout, &stderr)
	h.SetLevel(slog.LevelDebug)
	h.SendEverythingToStderr()
	logger := slog.New(h)

	logger.Debug("detail")
	logger.Info("note")

	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
	if got := stderr.String(); got != "detail\nnote\n" {
		t.Errorf("stderr = %q", got)
	}
}
