package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy = bluemonday.UGCPolicy()
	textPolicy = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content such as the notice bar.
func Sanitize(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeText strips all markup from user supplied plain text like names.
func SanitizeText(input string) string {
	return strings.TrimSpace(textPolicy.Sanitize(input))
}
