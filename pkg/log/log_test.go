package log

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestDebugRespectsFlag(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		want  bool
	}{
		{name: "debug enabled", debug: true, want: true},
		{name: "debug disabled", debug: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, tt.debug)
			logger.Debug("fetched %d commits", 3)

			got := strings.Contains(buf.String(), "fetched 3 commits")
			if got != tt.want {
				t.Errorf("Debug() wrote=%v, want %v (output %q)", got, tt.want, buf.String())
			}
			if logger.IsDebug() != tt.debug {
				t.Errorf("IsDebug() = %v, want %v", logger.IsDebug(), tt.debug)
			}
		})
	}
}

func TestLevelsIncludeEmoji(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)

	logger.Info("info")
	logger.Success("success")
	logger.Error("error")
	logger.Warning("warning")
	logger.Step("step")
	logger.Loading("loading")
	logger.Commit("commit")
	logger.Changelog("changelog")

	out := buf.String()
	for _, want := range []string{infoEmoji, successEmoji, errorEmoji, warnEmoji, stepEmoji, loadingEmoji, commitEmoji, changelogEmoji} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestFormatMessageWrapsLongLines(t *testing.T) {
	long := strings.Repeat("word ", 60)
	got := formatMessage(long)

	for _, line := range strings.Split(got, "\n") {
		if len(strings.TrimSpace(line)) > wrapWidth {
			t.Errorf("line longer than %d: %q", wrapWidth, line)
		}
	}
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("message %d", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("expected 50 lines, got %d", len(lines))
	}
}

func TestGormWriterOnlyInDebug(t *testing.T) {
	var buf bytes.Buffer
	GormWriter{Logger: NewWithWriter(&buf, false)}.Printf("SELECT %d", 1)
	if buf.Len() != 0 {
		t.Errorf("expected no output without debug, got %q", buf.String())
	}

	GormWriter{Logger: NewWithWriter(&buf, true)}.Printf("SELECT %d", 1)
	if !strings.Contains(buf.String(), "SELECT 1") {
		t.Errorf("expected SQL trace in debug mode, got %q", buf.String())
	}
}
