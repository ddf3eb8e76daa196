package util

import (
	"errors"
	"strings"
)

const maxFileNameLen = 200

// ErrInvalidFileName is returned when nothing usable is left after sanitizing.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName reduces a client supplied name to a single safe path
// segment: directories are dropped and anything outside [A-Za-z0-9._-]
// becomes an underscore.
func SanitizeFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	s = strings.TrimLeft(s, ".")
	if len(s) > maxFileNameLen {
		s = s[len(s)-maxFileNameLen:]
	}
	if s == "" || strings.Trim(s, "_") == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}
