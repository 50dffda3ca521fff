// Package convention derives storage defaults from template names.
package convention

import (
	"regexp"
	"strings"
)

var (
	firstCap = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	allCap   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// CollectionName derives the default collection name for a template:
// the snake_case form of the template name. Acronym runs stay
// together, so "HTTPLog" becomes "http_log", not "h_t_t_p_log".
func CollectionName(template string) string {
	s := firstCap.ReplaceAllString(template, "${1}_${2}")
	s = allCap.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}
