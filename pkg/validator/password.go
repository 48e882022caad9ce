package validator

import (
	"fmt"
	"strings"
	"unicode"
)

// commonPasswords is a short list of frequently breached passwords, lower-cased.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"123456": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {}, "1q2w3e4r": {},
	"abc123": {}, "abcd1234": {}, "letmein": {}, "welcome": {}, "welcome1": {},
	"admin": {}, "admin123": {}, "iloveyou": {}, "sunshine": {}, "princess": {},
	"football": {}, "monkey": {}, "dragon": {}, "trustno1": {}, "superman": {},
	"baseball": {}, "master": {}, "shadow": {}, "travel": {}, "travel123": {},
}

// PasswordPolicy sets the strength requirements.
type PasswordPolicy struct {
	MinLength      int
	MaxLength      int
	MinCharClasses int
}

// DefaultPasswordPolicy requires 8 to 128 characters from at least three of
// the classes upper, lower, digit and symbol.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, MaxLength: 128, MinCharClasses: 3}
}

// StrongPassword checks length and character class variety.
func StrongPassword(field, value string, p PasswordPolicy) Rule {
	return Rule{
		Check: func() bool {
			n := len([]rune(value))
			if n < p.MinLength || n > p.MaxLength {
				return false
			}
			var upper, lower, digit, symbol bool
			for _, r := range value {
				switch {
				case unicode.IsUpper(r):
					upper = true
				case unicode.IsLower(r):
					lower = true
				case unicode.IsDigit(r):
					digit = true
				case unicode.IsPunct(r) || unicode.IsSymbol(r):
					symbol = true
				}
			}
			classes := 0
			for _, ok := range []bool{upper, lower, digit, symbol} {
				if ok {
					classes++
				}
			}
			return classes >= p.MinCharClasses
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("password must be %d-%d characters and mix at least %d of: upper case, lower case, digits, symbols", p.MinLength, p.MaxLength, p.MinCharClasses),
			Key:     "validation.password_strength",
		},
	}
}

// NotCommonPassword rejects passwords from the breached list.
func NotCommonPassword(field, value string) Rule {
	return Rule{
		Check: func() bool {
			_, found := commonPasswords[strings.ToLower(value)]
			return !found
		},
		Error: ValidationError{Field: field, Message: "password is too common, please choose a different one", Key: "validation.password_common"},
	}
}
