package genai

import (
	"strings"
	"time"

	"github.com/docweaver/docweaver/internal/ratelimit"
)

// Published free-tier request-per-minute limits by model. Unknown
// models fall back to a conservative default rather than the highest
// published tier.
var modelRPM = map[string]int{
	"gemini-3-flash-preview": 10,
	"gemini-3-pro-preview":   2,
	"gemini-2.5-flash":       15,
	"gemini-2.5-pro":         2,
	"gemini-2.0-flash":       15,
	"gemini-2.0-flash-exp":   10,
}

// fallbackRPM is used when a model has no published limit.
const fallbackRPM = 5

// RPMLimit returns the requests-per-minute limit for a model. Accepts
// names with or without the "models/" prefix.
func RPMLimit(model string) int {
	model = strings.TrimPrefix(model, "models/")
	if rpm, ok := modelRPM[model]; ok {
		return rpm
	}
	return fallbackRPM
}

// RecommendedQuota derives a rate limit config for a model, keeping
// 10% headroom under the published limit so a clock-skewed upstream
// count never trips a real 429.
func RecommendedQuota(model string) ratelimit.Config {
	safe := RPMLimit(model) * 9 / 10
	if safe < 1 {
		safe = 1
	}
	return ratelimit.Config{MaxCalls: safe, Window: time.Minute}
}
