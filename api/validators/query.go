package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
)

// ParseQueryInt reads an optional bounded integer query parameter.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").
			WithDetails(map[string]any{"field": key, "value": SanitizeString(raw, 32)})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// RequireQueryString reads a sanitized, non-empty query parameter.
func RequireQueryString(r *http.Request, key string, maxLen int) (string, error) {
	v := SanitizeString(r.URL.Query().Get(key), maxLen)
	if v == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").
			WithDetails(map[string]any{"field": key})
	}
	return v, nil
}

// SanitizeString drops control characters, trims, and truncates to maxLen
// runes without splitting a multibyte character.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\t') {
			return -1
		}
		return r
	}, input)
	cleaned = strings.TrimSpace(cleaned)
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxLen]))
	}
	return cleaned
}
