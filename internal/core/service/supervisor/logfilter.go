package supervisor

import (
	"regexp"
	"strings"
)

// controlChars matches the stray control bytes spec.md §4.4 calls out:
// 0x00-0x08, 0x0B-0x0C, 0x0E-0x1F, 0x7F (0x09 tab, 0x0A newline, 0x0D CR
// are left alone; this runs on already-split lines).
var controlChars = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")

// ansiCSI matches ANSI/CSI escape sequences (color codes and friends).
var ansiCSI = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stacktraceJSON matches a JSON-ish "stacktrace":"..." field, including
// the camelCase variant, so it can be redacted before line-length and
// pattern checks run.
var stacktraceJSON = regexp.MustCompile(`"(?:stacktrace|stackTrace)"\s*:\s*"(?:[^"\\]|\\.)*"`)

// stacktraceObject matches a nested-object stacktrace form, e.g.
// "stacktrace": { ... }.
var stacktraceObject = regexp.MustCompile(`"(?:stacktrace|stackTrace)"\s*:\s*\{[^}]*\}`)

const stacktracePlaceholder = `"stacktrace":"[redacted]"`

// dropPatterns are line shapes that are always discarded regardless of
// length (spec.md §4.4).
var dropPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*at\s`),
	regexp.MustCompile(`(?i)Exception in thread`),
	regexp.MustCompile(`(?i)deprecated`),
	regexp.MustCompile(`(?i)^\[debug\]`),
	regexp.MustCompile(`(?i)\bverbose\b`),
	regexp.MustCompile(`(?i)welcome to appium`),
	regexp.MustCompile(`(?i)appium v\d`),
	regexp.MustCompile(`(?i)non-default server args`),
	regexp.MustCompile(`(?i)w3c capabilities`),
	regexp.MustCompile(`^(?i)(GET|POST|PUT|DELETE|HTTP)\b`),
	regexp.MustCompile(`^\s*\{\s*\}\s*$`),
	regexp.MustCompile(`^[-=]{3,}$`),
}

// keepPatterns are the "important" families that are always retained
// even when long (spec.md §4.4).
var keepPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(listen|listening|server start|started)`),
	regexp.MustCompile(`(?i)session (created|started)`),
	regexp.MustCompile(`(?i)ready to accept`),
	regexp.MustCompile(`(?i)(executing|succeeded|failed) command`),
	regexp.MustCompile(`(?i)driver (init|initializing)`),
	regexp.MustCompile(`(?i)(app|application) (launch|install)`),
	regexp.MustCompile(`(?i)element (found|click)`),
	regexp.MustCompile(`(?i)navigate`),
	regexp.MustCompile(`(?i)test (start|complete)`),
	regexp.MustCompile(`(?i)\b(error|fail|warn)\b`),
}

const maxKeptLineLength = 200

// filterLine applies spec.md §4.4's log filter to a single raw line and
// reports whether it should be kept, along with the cleaned text.
// filterLine is idempotent: filterLine(filterLine(x).text) == filterLine(x).
func filterLine(raw string) (text string, keep bool) {
	s := ansiCSI.ReplaceAllString(raw, "")
	s = controlChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	s = stacktraceObject.ReplaceAllString(s, stacktracePlaceholder)
	s = stacktraceJSON.ReplaceAllString(s, stacktracePlaceholder)

	if s == "" {
		return "", false
	}

	for _, p := range dropPatterns {
		if p.MatchString(s) {
			return s, false
		}
	}

	for _, p := range keepPatterns {
		if p.MatchString(s) {
			return s, true
		}
	}

	if len(s) < maxKeptLineLength {
		return s, true
	}

	return s, false
}
