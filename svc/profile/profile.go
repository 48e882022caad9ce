// Package profile resolves the application profile of the signed-in user by
// merging the stored profile record with the identity held by the auth
// capability.
package profile

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrymomot/trevia/svc/auth"
)

// Identity metadata keys for each profile field.
const (
	MetaFullName  = "full_name"
	MetaAvatarURL = "avatar_url"
	MetaUsername  = "user_name"
	MetaWebsite   = "website"
)

// FallbackDisplayName is used when nothing better is known.
const FallbackDisplayName = "User"

// Record is the persisted profile row. ID equals the owning identity's ID.
// Empty strings are stored as NULL.
type Record struct {
	ID        string
	Username  string
	FullName  string
	AvatarURL string
	Website   string
	UpdatedAt *time.Time
}

// Resolved is the merged profile. Optional fields are nil when absent.
type Resolved struct {
	ID        string     `json:"id"`
	Email     string     `json:"email,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt"`
	Username  *string    `json:"username"`
	FullName  *string    `json:"fullName"`
	AvatarURL *string    `json:"avatarUrl"`
	Website   *string    `json:"website"`
}

// Merge builds the resolved profile for identity. rec may be nil for a user
// without a stored row. Each field takes the stored value, then the
// identity metadata, then nothing; username finally falls back to the
// local part of the email.
func Merge(identity auth.Identity, rec *Record) Resolved {
	var stored Record
	if rec != nil {
		stored = *rec
	}
	meta := func(key string) string {
		v, _ := identity.MetadataString(key)
		return v
	}

	r := Resolved{
		ID:        identity.ID,
		Email:     identity.Email,
		CreatedAt: identity.CreatedAt,
		Username:  pick(stored.Username, meta(MetaUsername), localPart(identity.Email)),
		FullName:  pick(stored.FullName, meta(MetaFullName)),
		AvatarURL: pick(stored.AvatarURL, meta(MetaAvatarURL)),
		Website:   pick(stored.Website, meta(MetaWebsite)),
	}
	if stored.UpdatedAt != nil {
		t := *stored.UpdatedAt
		r.UpdatedAt = &t
	}
	return r
}

// DisplayName is the full name, else the username, else the email local
// part, else FallbackDisplayName.
func (r *Resolved) DisplayName() string {
	if r == nil {
		return FallbackDisplayName
	}
	if v := deref(r.FullName); v != "" {
		return v
	}
	if v := deref(r.Username); v != "" {
		return v
	}
	if v := localPart(r.Email); v != "" {
		return v
	}
	return FallbackDisplayName
}

// Initials is the upper-cased first character of the display name.
func (r *Resolved) Initials() string {
	first, _ := utf8.DecodeRuneInString(r.DisplayName())
	if first == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(first))
}

func pick(candidates ...string) *string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); v != "" {
			return &v
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func localPart(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return strings.TrimSpace(local)
}
