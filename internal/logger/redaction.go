package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor redacts sensitive information from logs
type Redactor struct {
	patterns []rule
}

type rule struct {
	re   *regexp.Regexp
	repl string
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []rule{
			// provider API keys (OpenAI sk-, Anthropic sk-ant-)
			{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), redacted},
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`), redacted},
			// credentials embedded in redis:// and rediss:// URLs
			{regexp.MustCompile(`(rediss?://)[^\s@/]*:[^\s@/]+@`), "${1}" + redacted + "@"},
			{regexp.MustCompile(`(?i)password["\s:=]+[^\s",}]+`), redacted},
			{regexp.MustCompile(`(?i)token["\s:=]+[a-zA-Z0-9._-]{20,}`), redacted},
			{regexp.MustCompile(`(?i)secret["\s:=]+[^\s",}]+`), redacted},
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, rule{re, redacted})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, p := range r.patterns {
		result = p.re.ReplaceAllString(result, p.repl)
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shortened
// line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
