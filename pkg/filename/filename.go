// Package filename turns arbitrary titles into filesystem- and header-safe names.
package filename

import (
	"mime"
	"regexp"
	"strings"
)

// DefaultFallback is used when a title sanitizes to nothing.
const DefaultFallback = "download"

var (
	reservedPattern   = regexp.MustCompile(`[\\/:*?"<>|']+`)
	newlinePattern    = regexp.MustCompile(`[\r\n]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Sanitize replaces reserved, quote and newline characters with a space, collapses
// whitespace and trims. An empty result yields fallback, or DefaultFallback when
// fallback is empty too.
func Sanitize(title, fallback string) string {
	if fallback == "" {
		fallback = DefaultFallback
	}

	s := reservedPattern.ReplaceAllString(title, " ")
	s = newlinePattern.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if s == "" {
		return fallback
	}
	return s
}

// ContentDisposition builds an attachment header value for name. Non-ASCII names get an
// ASCII fallback plus an RFC 5987 filename* parameter.
func ContentDisposition(name string) string {
	fallback := asciiFallback(name)
	v := `attachment; filename="` + fallback + `"`
	if fallback == name {
		return v
	}

	encoded := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if ext, ok := strings.CutPrefix(encoded, "attachment; "); ok && strings.HasPrefix(ext, "filename*=") {
		v += "; " + ext
	}
	return v
}

func asciiFallback(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\':
			return '_'
		case r < 0x20 || r > 0x7e:
			return '?'
		}
		return r
	}, name)
}
