package sanitizer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/trevia/pkg/sanitizer"
)

func TestComposePipeline(t *testing.T) {
	t.Parallel()

	clean := sanitizer.Compose(sanitizer.RemoveControlChars, sanitizer.StripHTML, sanitizer.SingleLine, sanitizer.MaxLength(10))
	assert.Equal(t, "Ada Lovela", clean("  <b>Ada</b>\x00\n  Lovelace  "))
	assert.Equal(t, "x", sanitizer.Apply(" x ", sanitizer.Trim))
	assert.Equal(t, "", sanitizer.Apply("   ", sanitizer.Trim, sanitizer.SingleLine))
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Tom & Jerry", sanitizer.StripHTML("<i>Tom</i> &amp; Jerry"))
}

func TestMaxLengthCountsRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "жжж", sanitizer.MaxLength(3)(strings.Repeat("ж", 5)))
	assert.Equal(t, "ab", sanitizer.MaxLength(-1)("ab"))
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  Ada.Lovelace@Example.COM ": "ada.lovelace@example.com",
		"ada..lovelace.@example.com":  "ada.lovelace@example.com",
		"not-an-email":                "not-an-email",
		"a@b@c":                       "a@b@c",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizer.NormalizeEmail(in), in)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.com", sanitizer.NormalizeURL(" Example.com/ "))
	assert.Equal(t, "http://example.com/trips", sanitizer.NormalizeURL("http://EXAMPLE.com/trips"))
	assert.Equal(t, "", sanitizer.NormalizeURL("  "))
}
