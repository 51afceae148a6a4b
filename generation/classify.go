package generation

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxPayloadDepth bounds how many nested JSON-in-string layers are unwrapped
const maxPayloadDepth = 3

var (
	rateLimitCodeRe  = regexp.MustCompile(`\b429\b`)
	retryInRe        = regexp.MustCompile(`(?i)retry in\s+(\d+(?:\.\d+)?)\s*s`)
	retryDelayRe     = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+(?:\.\d+)?)s"`)
	rateLimitMarkers = []string{"resource_exhausted", "too many requests", "rate limit"}
	deniedMarkers    = []string{"permission_denied", "requested entity was not found", "billing", "not_found"}
)

// errorSignal is one view (status code, status, message) of an error payload
type errorSignal struct {
	code    int
	status  string
	message string
}

// signalsOf collects every signal carried by err, unwrapping JSON payloads
// that may themselves be JSON-encoded strings.
func signalsOf(err error) []errorSignal {
	if err == nil {
		return nil
	}
	var out []errorSignal
	var pe *ProviderError
	if errors.As(err, &pe) {
		out = append(out, errorSignal{code: pe.StatusCode, status: pe.Status, message: pe.Message})
		if pe.Body != "" {
			out = append(out, parsePayload(pe.Body, 0)...)
		}
		if pe.Message != "" {
			out = append(out, parsePayload(pe.Message, 0)...)
		}
	}
	return append(out, parsePayload(err.Error(), 0)...)
}

func parsePayload(text string, depth int) []errorSignal {
	out := []errorSignal{{message: text}}
	if depth >= maxPayloadDepth {
		return out
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if json.Unmarshal([]byte(trimmed), &inner) == nil {
			return append(out, parsePayload(inner, depth+1)...)
		}
	}

	start := strings.Index(trimmed, "{")
	if start < 0 {
		return out
	}
	var raw map[string]any
	if err := json.NewDecoder(strings.NewReader(trimmed[start:])).Decode(&raw); err != nil {
		return out
	}
	obj := raw
	if nested, ok := raw["error"].(map[string]any); ok {
		obj = nested
	}

	sig := errorSignal{}
	switch code := obj["code"].(type) {
	case float64:
		sig.code = int(code)
	case string:
		sig.code, _ = strconv.Atoi(code)
	}
	sig.status, _ = obj["status"].(string)
	sig.message, _ = obj["message"].(string)
	out = append(out, sig)

	if sig.message != "" {
		out = append(out, parsePayload(sig.message, depth+1)...)
	}
	return out
}

// IsRateLimit reports whether err carries a 429 / RESOURCE_EXHAUSTED signal,
// either as a status code or as a textual marker in the payload.
func IsRateLimit(err error) bool {
	for _, sig := range signalsOf(err) {
		if sig.code == 429 || strings.EqualFold(sig.status, "RESOURCE_EXHAUSTED") {
			return true
		}
		if rateLimitCodeRe.MatchString(sig.message) || containsAny(sig.message, rateLimitMarkers) {
			return true
		}
	}
	return false
}

// IsPermissionDenied reports whether err is a not-found, permission or billing
// rejection, which on premium models means the key cannot use that model.
func IsPermissionDenied(err error) bool {
	if err == nil || IsRateLimit(err) {
		return false
	}
	for _, sig := range signalsOf(err) {
		if sig.code == 403 || sig.code == 404 {
			return true
		}
		if strings.EqualFold(sig.status, "PERMISSION_DENIED") || strings.EqualFold(sig.status, "NOT_FOUND") {
			return true
		}
		if containsAny(sig.message, deniedMarkers) {
			return true
		}
	}
	return false
}

// RetryAfter extracts a provider supplied "retry in N seconds" hint
func RetryAfter(err error) (time.Duration, bool) {
	for _, sig := range signalsOf(err) {
		for _, re := range []*regexp.Regexp{retryInRe, retryDelayRe} {
			if m := re.FindStringSubmatch(sig.message); m != nil {
				secs, perr := strconv.ParseFloat(m[1], 64)
				if perr == nil {
					return time.Duration(secs * float64(time.Second)), true
				}
			}
		}
	}
	return 0, false
}

func containsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
