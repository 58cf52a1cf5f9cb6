package security

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptTagPattern = regexp.MustCompile(`(?is)<\s*script[\s>].*?<\s*/\s*script\s*>`)
	eventAttrPattern = regexp.MustCompile(`(?is)\son[a-z]+\s*=\s*"[^"]*"`)
	markupTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)
	nonDigitPattern  = regexp.MustCompile(`[^0-9]`)
	nonPhonePattern  = regexp.MustCompile(`[^0-9-]`)
)

// SanitizeText trims the value and strips control characters and markup that
// could be interpreted as script when the value is rendered later.
func SanitizeText(input string) string {
	clean := scriptTagPattern.ReplaceAllString(input, "")
	clean = eventAttrPattern.ReplaceAllString(clean, "")
	clean = markupTagPattern.ReplaceAllString(clean, "")
	clean = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, clean)
	clean = strings.NewReplacer("<", "", ">", "").Replace(clean)
	return strings.TrimSpace(clean)
}

// SanitizeOptional returns nil for blank input.
func SanitizeOptional(input string) *string {
	clean := SanitizeText(input)
	if clean == "" {
		return nil
	}
	return &clean
}

func DigitsOnly(input string) string {
	return nonDigitPattern.ReplaceAllString(input, "")
}

func PhoneDigits(input string) string {
	return nonPhonePattern.ReplaceAllString(input, "")
}
