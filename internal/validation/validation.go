package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var phoneRegex = regexp.MustCompile(`^0\d{1,2}-?\d{3,4}-?\d{4}$`)

const maxImageURLs = 10

// Error is a field-level input validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// SanitizeString strips control characters and surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// Require checks that a string field is present after sanitizing.
func Require(field, value string) error {
	if SanitizeString(value) == "" {
		return &Error{Field: field, Message: "is required"}
	}
	return nil
}

// ValidatePhone checks a local-format phone number (e.g. 010-1234-5678).
func ValidatePhone(phone string) error {
	phone = SanitizeString(phone)
	if phone == "" {
		return &Error{Field: "phone", Message: "is required"}
	}
	if !phoneRegex.MatchString(phone) {
		return &Error{Field: "phone", Message: "must be a valid phone number"}
	}
	return nil
}

// ValidateImageURLs checks the proof image list: at least one entry, a
// bounded count, and http(s) URLs only. The binaries themselves live in
// the external object store; only their URLs pass through here.
func ValidateImageURLs(urls []string) error {
	if len(urls) == 0 {
		return &Error{Field: "image_urls", Message: "at least one image is required"}
	}
	if len(urls) > maxImageURLs {
		return &Error{Field: "image_urls", Message: fmt.Sprintf("cannot contain more than %d images", maxImageURLs)}
	}
	for i, raw := range urls {
		u, err := url.Parse(SanitizeString(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &Error{
				Field:   fmt.Sprintf("image_urls[%d]", i),
				Message: "must be an http(s) URL",
			}
		}
	}
	return nil
}
