package judge

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const redactedTokenMark = "<redacted-token>"

var (
	emailPattern = regexp.MustCompile(`\b([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`)

	// Query parameter keys whose values are replaced by a hash marker
	sensitiveQueryKeys = map[string]bool{
		"token": true, "key": true, "apikey": true, "api_key": true,
		"auth": true, "session": true, "sid": true, "secret": true,
		"password": true, "pass": true, "code": true, "otp": true,
		"access_token": true, "id_token": true,
	}
	queryParamPattern = regexp.MustCompile(`([?&](?:amp;)?)([A-Za-z_][A-Za-z0-9_]*)=([^&"'\s\\]+)`)

	// Long bare alphanumerics that look like bearer credentials
	bearerPattern = regexp.MustCompile(`\b(?:Bearer\s+)?[A-Za-z0-9_-]{32,}\b`)
	uuidPattern   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Redact masks email local parts, sensitive query parameter values and
// bearer-like tokens in the given text. Calling it twice is a no-op.
func Redact(text string) string {
	// "xx***@domain" cannot re-match the address pattern, so a second pass
	// leaves masked addresses alone
	out := emailPattern.ReplaceAllString(text, "xx***@$2")

	out = queryParamPattern.ReplaceAllStringFunc(out, func(match string) string {
		m := queryParamPattern.FindStringSubmatch(match)
		sep, key, value := m[1], m[2], m[3]
		if !sensitiveQueryKeys[strings.ToLower(key)] {
			return match
		}
		if strings.HasPrefix(value, "<redacted") {
			return match
		}
		sum := sha256.Sum256([]byte(value))
		return sep + key + "=<redacted:" + hex.EncodeToString(sum[:])[:12] + ">"
	})

	out = bearerPattern.ReplaceAllStringFunc(out, func(match string) string {
		if strings.Contains(match, "redacted") {
			return match
		}
		// Hex digests and message UUIDs stay readable
		if isHex(match) || uuidPattern.MatchString(match) {
			return match
		}
		return redactedTokenMark
	})

	return out
}

func isHex(s string) bool {
	s = strings.TrimPrefix(s, "Bearer ")
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return len(s) > 0
}
