package security

import (
	"regexp"
	"strings"
)

// sensitiveFields contains field names that should be masked in logs.
var sensitiveFields = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"password":      true,
	"secret":        true,
	"session":       true,
	"token":         true,
	"access_key_id": true,
	"secret_key":    true,
}

// sensitivePatterns contains regex patterns for sensitive data.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token|token|password)[=:]\s*["']?([^\s"'&]+)["']?`),
	regexp.MustCompile(`(?i)bearer\s+([A-Za-z0-9_\-\.]+)`),
}

// IsSensitiveField checks if a field name is sensitive.
func IsSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskSensitive masks credentials embedded in free text such as URLs,
// headers, and error messages.
func MaskSensitive(input string) string {
	result := input

	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			secret := sub[len(sub)-1]
			if secret == "" {
				return match
			}
			return strings.Replace(match, secret, MaskCredential(secret), 1)
		})
	}

	return result
}

// ContainsSensitiveData checks if a string contains sensitive data patterns.
func ContainsSensitiveData(input string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}
