package supervisor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterLine_DropsStacktraceFrames(t *testing.T) {
	_, keep := filterLine("\tat com.example.Foo.bar(Foo.java:42)")
	assert.False(t, keep)
}

func TestFilterLine_KeepsShortHTTPTraceLine(t *testing.T) {
	// "HTTP" only triggers the drop pattern when it leads the line; here
	// it's bracketed, so this falls through to the short-line default.
	text, keep := filterLine("[HTTP] --> POST /session")
	assert.True(t, keep)
	assert.NotContains(t, text, "\x1b")
}

func TestFilterLine_DropsLeadingHTTPVerbLine(t *testing.T) {
	_, keep := filterLine("POST /session HTTP/1.1")
	assert.False(t, keep)
}

func TestFilterLine_KeepsReadySentinel(t *testing.T) {
	text, keep := filterLine("[Appium] REST http interface listener started on 0.0.0.0:4723")
	assert.True(t, keep)
	assert.Contains(t, text, "listener started")
}

func TestFilterLine_StripsANSIAndControlChars(t *testing.T) {
	raw := "\x1b[32m[debug] some verbose log\x1b[0m\x01"
	text, keep := filterLine(raw)
	assert.False(t, keep) // [debug] is a drop pattern
	assert.Equal(t, "[debug] some verbose log", text)
}

func TestFilterLine_DropsOverlongUninterestingLines(t *testing.T) {
	long := strings.Repeat("x", maxKeptLineLength+1)
	_, keep := filterLine(long)
	assert.False(t, keep)
}

func TestFilterLine_KeepsShortUninterestingLines(t *testing.T) {
	_, keep := filterLine("some short line")
	assert.True(t, keep)
}

func TestFilterLine_RedactsStacktraceField(t *testing.T) {
	text, _ := filterLine(`{"stacktrace":"com.example.Error: boom\n\tat Foo.bar"}`)
	assert.Contains(t, text, "[redacted]")
	assert.NotContains(t, text, "com.example.Error")
}

func TestFilterLine_Idempotent(t *testing.T) {
	raw := "\x1b[32m[Appium] REST http interface listener started\x1b[0m"
	firstText, firstKeep := filterLine(raw)
	secondText, secondKeep := filterLine(firstText)
	assert.Equal(t, firstText, secondText)
	assert.Equal(t, firstKeep, secondKeep)
}

func TestFilterLine_DropsBlankLines(t *testing.T) {
	_, keep := filterLine("   \t  ")
	assert.False(t, keep)
}
