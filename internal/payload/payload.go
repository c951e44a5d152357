package payload

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports that model output was not the expected JSON shape.
// Raw preserves the original text for diagnostics; callers keep it in
// the degraded result instead of retrying (a retry re-spends quota for
// uncertain benefit).
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("payload: decode model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StripFences removes an optional leading ```json or ``` fence and an
// optional trailing ``` fence. Models frequently wrap JSON answers in
// markdown code blocks even when told not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Extract decodes the fenced-or-bare JSON in text into v. On failure it
// returns a *ParseError carrying the original text.
func Extract(text string, v any) error {
	if err := json.Unmarshal([]byte(StripFences(text)), v); err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	return nil
}
