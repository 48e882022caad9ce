package profile

import (
	"github.com/dmitrymomot/trevia/pkg/sanitizer"
	"github.com/dmitrymomot/trevia/pkg/validator"
)

// Patch carries the fields a user changes. A nil field is left alone; an
// empty string clears the stored value.
type Patch struct {
	Username  *string `json:"username" form:"username"`
	FullName  *string `json:"fullName" form:"full_name"`
	AvatarURL *string `json:"avatarUrl" form:"avatar_url"`
	Website   *string `json:"website" form:"website"`
}

var (
	cleanText = sanitizer.Compose(sanitizer.RemoveControlChars, sanitizer.SingleLine, sanitizer.StripHTML, sanitizer.Trim)
	cleanURL  = sanitizer.Compose(sanitizer.RemoveControlChars, sanitizer.NormalizeURL)
)

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Username == nil && p.FullName == nil && p.AvatarURL == nil && p.Website == nil
}

// Sanitize returns a copy with normalized values.
func (p Patch) Sanitize() Patch {
	apply := func(v *string, fn func(string) string) *string {
		if v == nil {
			return nil
		}
		s := fn(*v)
		return &s
	}
	return Patch{
		Username:  apply(p.Username, cleanText),
		FullName:  apply(p.FullName, cleanText),
		AvatarURL: apply(p.AvatarURL, cleanURL),
		Website:   apply(p.Website, cleanURL),
	}
}

// Validate checks the set fields. Empty values are allowed and clear the
// field.
func (p Patch) Validate() error {
	set := func(v *string) bool { return v != nil && *v != "" }
	return validator.Apply(
		validator.When(set(p.Username), validator.MinLen("username", deref(p.Username), 3)),
		validator.When(set(p.Username), validator.MaxLen("username", deref(p.Username), 32)),
		validator.When(set(p.Username), validator.Username("username", deref(p.Username))),
		validator.When(set(p.FullName), validator.MaxLen("fullName", deref(p.FullName), 120)),
		validator.When(set(p.AvatarURL), validator.ValidURL("avatarUrl", deref(p.AvatarURL))),
		validator.When(set(p.Website), validator.ValidURL("website", deref(p.Website))),
	)
}

// ApplyTo returns rec with the patch applied.
func (p Patch) ApplyTo(rec Record) Record {
	if p.Username != nil {
		rec.Username = *p.Username
	}
	if p.FullName != nil {
		rec.FullName = *p.FullName
	}
	if p.AvatarURL != nil {
		rec.AvatarURL = *p.AvatarURL
	}
	if p.Website != nil {
		rec.Website = *p.Website
	}
	return rec
}
