package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Required fails on empty or whitespace-only values.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required", Key: "validation.required"},
	}
}

// MinLen counts characters, not bytes.
func MinLen(field, value string, min int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) >= min },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters long", min), Key: "validation.min_length"},
	}
}

// MaxLen counts characters, not bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters long", max), Key: "validation.max_length"},
	}
}

// Username allows letters, digits, underscore, dot and hyphen.
func Username(field, value string) Rule {
	return Rule{
		Check: func() bool { return usernameRegex.MatchString(value) },
		Error: ValidationError{Field: field, Message: "may contain only letters, digits, '_', '.' and '-'", Key: "validation.username"},
	}
}

// ValidEmail accepts a bare RFC 5322 address whose domain has at least one dot.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != strings.TrimSpace(value) {
				return false
			}
			local, domain, ok := strings.Cut(addr.Address, "@")
			if !ok || local == "" || !strings.Contains(domain, ".") {
				return false
			}
			for part := range strings.SplitSeq(domain, ".") {
				if part == "" {
					return false
				}
			}
			return true
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address", Key: "validation.email"},
	}
}

// ValidURL requires an absolute URL with a host and one of schemes
// (http and https when none are given).
func ValidURL(field, value string, schemes ...string) Rule {
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	return Rule{
		Check: func() bool {
			u, err := url.ParseRequestURI(value)
			return err == nil && u.Host != "" && slices.Contains(schemes, u.Scheme)
		},
		Error: ValidationError{Field: field, Message: "must be a valid URL", Key: "validation.url"},
	}
}
